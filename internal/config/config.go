package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir" env:"ARPGEN_WORK_DIR"`
	LogDir  string `toml:"log_dir"  env:"ARPGEN_LOG_DIR"`
}

// Obiwan contains configuration for the SCALE OBIWAN executable.
type Obiwan struct {
	Binary         string `toml:"binary"          env:"ARPGEN_OBIWAN_BINARY"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"ARPGEN_OBIWAN_TIMEOUT"`
}

// Library contains configuration for the reactor library being assembled.
type Library struct {
	Name      string `toml:"name"       env:"ARPGEN_LIBRARY_NAME"`
	FuelType  string `toml:"fuel_type"  env:"ARPGEN_FUEL_TYPE"`
	Suffix    string `toml:"suffix"`
	KeepEvery int    `toml:"keep_every" env:"ARPGEN_KEEP_EVERY"`
	Workers   int    `toml:"workers"    env:"ARPGEN_WORKERS"`
	// DimMap translates interpolation axis names to the state keys used in
	// permutation inputs, e.g. mod_dens = "coolant_density".
	DimMap map[string]string `toml:"dim_map"`
}

// Plan contains configuration for permutation planning.
type Plan struct {
	SpecificPower float64              `toml:"specific_power"`
	Burnups       []float64            `toml:"burnups"`
	Axes          map[string][]float64 `toml:"axes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"ARPGEN_LOG_FORMAT"`
	Level  string `toml:"level"  env:"ARPGEN_LOG_LEVEL"`
}

// Config encapsulates all configuration values for arpgen.
//
// Configuration sections by subsystem:
//   - Paths: work and log directories
//   - Obiwan: external tool binary and invocation timeout
//   - Library: assembled library name, fuel type, thinning, and concurrency
//   - Plan: state-space axes, burnup schedule, and specific power
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Obiwan  Obiwan  `toml:"obiwan"`
	Library Library `toml:"library"`
	Plan    Plan    `toml:"plan"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/arpgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Environment variables with the ARPGEN_ prefix
// override file values.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/arpgen/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("arpgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for assembly runs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ObiwanBinary returns the OBIWAN executable name.
func (c *Config) ObiwanBinary() string {
	if strings.TrimSpace(c.Obiwan.Binary) != "" {
		return c.Obiwan.Binary
	}
	return defaultObiwanBinary
}

// ObiwanTimeout returns the per-invocation timeout for OBIWAN calls.
func (c *Config) ObiwanTimeout() time.Duration {
	if c.Obiwan.TimeoutSeconds <= 0 {
		return time.Duration(defaultObiwanTimeoutSeconds) * time.Second
	}
	return time.Duration(c.Obiwan.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
