package main

import (
	"errors"
	"log"
	"os"

	"github.com/vworld/virtualworld/internal/app"
	"github.com/vworld/virtualworld/internal/storage"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatalf("app.New: %v", err)
	}

	if err := application.Run(); err != nil {
		if errors.Is(err, storage.ErrAlreadyRunning) {
			os.Exit(1)
		}

		log.Fatalf("app.Run: %v", err)
	}
}
