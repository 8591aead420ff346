package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vworld/virtualworld/internal/config"
	"github.com/vworld/virtualworld/internal/logger"
	"github.com/vworld/virtualworld/internal/shell"
	"github.com/vworld/virtualworld/internal/storage"
	"github.com/vworld/virtualworld/internal/storage/flatfile"
	"github.com/vworld/virtualworld/internal/world"
)

type Application struct {
	log   *slog.Logger
	store storage.Storage
	shell *shell.Shell
}

func New() (*Application, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config.NewConfig: %w", err)
	}

	logLevel, err := logger.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger.ParseLogLevel: %w", err)
	}

	logFormat, err := logger.ParseLogFormat(cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger.ParseLogFormat: %w", err)
	}

	logg := logger.NewLogger(
		logger.WithLevel(logLevel),
		logger.WithFormat(logFormat),
		logger.WithAddSource(false),
	)

	store := storage.NewStorage(flatfile.NewStorage(cfg.DataDir,
		flatfile.WithLogger(logg),
	))

	wrld := world.NewWorld(store, world.WithLogger(logg))

	sh := shell.NewShell(wrld, os.Stdin, os.Stdout, shell.WithLogger(logg))

	return &Application{
		log:   logg,
		store: store,
		shell: sh,
	}, nil
}

// Run acquires the launch lock, drives the interactive shell and releases
// the lock on exit. A second instance pointed at the same data directory
// refuses to start without touching any data file.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, err := a.store.AcquireLaunchLock(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyRunning) {
			a.log.Error("Another instance is already running, exiting")

			return err
		}

		return fmt.Errorf("storage.AcquireLaunchLock: %w", err)
	}

	a.log.Info("Starting Virtual World", slog.Int("times_opened", opts.TimesOpened))

	defer func() {
		if err := a.store.ReleaseLaunchLock(context.Background()); err != nil {
			a.log.Error("storage.ReleaseLaunchLock", slog.Any("error", err))
		}

		if err := a.store.Close(); err != nil {
			a.log.Error("storage.Close", slog.Any("error", err))
		}
	}()

	errChan := make(chan error, 1)

	go func() {
		errChan <- a.shell.Run(ctx)
	}()

	// Graceful shutdown handler
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("shell.Run: %w", err)
		}

		return nil

	case <-quit:
		a.log.Info("Gracefully shutting down...")

		cancel()

		return nil
	}
}
