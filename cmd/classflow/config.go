package main

import (
	"os"

	"github.com/naoina/toml"
)

// Config is the optional TOML configuration for the CLI.
type Config struct {
	// ExcludeClasses are internal class names removed from the pool
	// before analysis.
	ExcludeClasses []string
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
