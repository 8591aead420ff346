package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env"
)

type Config struct {
	DataDir   string `env:"DATA_DIR"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

func NewConfig() (Config, error) {
	cfg := Config{}

	flag.StringVar(&cfg.DataDir, "d", ".", "data file directory [env:DATA_DIR]")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log output level [env:LOG_LEVEL]")
	flag.StringVar(&cfg.LogFormat, "f", "text", "log output format, text or json [env:LOG_FORMAT]")
	flag.Parse()

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	return cfg, nil
}
