package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// applyEnv overlays ARPGEN_-prefixed environment variables onto the config.
// Variables that are unset leave the corresponding fields untouched, so file
// values and defaults survive.
func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}
	return nil
}
