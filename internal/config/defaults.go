package config

const (
	defaultWorkDir              = "~/.local/share/arpgen/work"
	defaultLogDir               = "~/.local/share/arpgen/logs"
	defaultObiwanBinary         = "obiwan"
	defaultObiwanTimeoutSeconds = 600
	defaultLibrarySuffix        = ".system.f33"
	defaultKeepEvery            = 1
	defaultWorkers              = 4
	defaultFuelType             = "UOX"
	defaultSpecificPower        = 40.0
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Obiwan: Obiwan{
			Binary:         defaultObiwanBinary,
			TimeoutSeconds: defaultObiwanTimeoutSeconds,
		},
		Library: Library{
			FuelType:  defaultFuelType,
			Suffix:    defaultLibrarySuffix,
			KeepEvery: defaultKeepEvery,
			Workers:   defaultWorkers,
		},
		Plan: Plan{
			SpecificPower: defaultSpecificPower,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
