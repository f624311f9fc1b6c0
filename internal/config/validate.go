package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateObiwan(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validatePlan(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateObiwan() error {
	if c.Obiwan.TimeoutSeconds <= 0 {
		return errors.New("obiwan.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.Name == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/arpgen/config.toml"
		}
		return fmt.Errorf("library.name is required. Set ARPGEN_LIBRARY_NAME env var or edit %s (create with 'arpgen config init')", defaultPath)
	}
	switch c.Library.FuelType {
	case "UOX", "MOX":
	default:
		return fmt.Errorf("library.fuel_type must be UOX or MOX, got %q", c.Library.FuelType)
	}
	if err := ensurePositiveMap(map[string]int{
		"library.keep_every": c.Library.KeepEvery,
		"library.workers":    c.Library.Workers,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlan() error {
	if len(c.Plan.Burnups) > 0 {
		if c.Plan.SpecificPower <= 0 {
			return errors.New("plan.specific_power must be positive when plan.burnups is set")
		}
		for i := 1; i < len(c.Plan.Burnups); i++ {
			if c.Plan.Burnups[i] <= c.Plan.Burnups[i-1] {
				return fmt.Errorf("plan.burnups must be strictly increasing (entry %d)", i)
			}
		}
	}
	for axis, values := range c.Plan.Axes {
		if len(values) == 0 {
			return fmt.Errorf("plan.axes.%s must include at least one value", axis)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
