package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML configuration file. Flags override it.
type fileConfig struct {
	Ingest  ingestConfig  `toml:"ingest"`
	Secrets secretsConfig `toml:"secrets"`
	Output  outputConfig  `toml:"output"`
}

type ingestConfig struct {
	Images       bool     `toml:"images"`
	OCR          bool     `toml:"ocr"`
	OCRLanguages []string `toml:"ocr_languages"`
}

type secretsConfig struct {
	// EnvFile is a dotenv file consulted for secret lookups.
	EnvFile   string `toml:"env_file"`
	Namespace string `toml:"namespace"`
}

type outputConfig struct {
	// Format is one of json, text, slack.
	Format string `toml:"format"`
	// ImageDir receives extracted images; empty disables writing them.
	ImageDir string `toml:"image_dir"`
}

func loadConfig(path string) (fileConfig, error) {
	cfg := fileConfig{Output: outputConfig{Format: "text"}}
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.Output.Format {
	case "", "json", "text", "slack":
	default:
		return cfg, fmt.Errorf("unknown output format %q", cfg.Output.Format)
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
	return cfg, nil
}
