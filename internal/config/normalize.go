package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeObiwan()
	c.normalizeLibrary()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeObiwan() {
	c.Obiwan.Binary = strings.TrimSpace(c.Obiwan.Binary)
	if c.Obiwan.Binary == "" {
		c.Obiwan.Binary = defaultObiwanBinary
	}
}

func (c *Config) normalizeLibrary() {
	c.Library.Name = strings.TrimSpace(c.Library.Name)
	c.Library.FuelType = strings.ToUpper(strings.TrimSpace(c.Library.FuelType))
	if c.Library.FuelType == "" {
		c.Library.FuelType = defaultFuelType
	}
	c.Library.Suffix = strings.TrimSpace(c.Library.Suffix)
	if c.Library.Suffix == "" {
		c.Library.Suffix = defaultLibrarySuffix
	}
	if !strings.HasPrefix(c.Library.Suffix, ".") {
		c.Library.Suffix = "." + c.Library.Suffix
	}
	if len(c.Library.DimMap) > 0 {
		cleaned := make(map[string]string, len(c.Library.DimMap))
		for key, value := range c.Library.DimMap {
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if key == "" || value == "" {
				continue
			}
			cleaned[key] = value
		}
		c.Library.DimMap = cleaned
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
