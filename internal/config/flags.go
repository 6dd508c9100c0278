package config

import "flag"

var (
	flagConfig   = flag.String("config", "", "Path to config file (.yaml or .toml)")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagStrict   = flag.Bool("strict", false, "Fail on structural violations")
	flagSkeleton = flag.String("skeleton", "", "Path to a YAML skeleton file")
	flagTemplate = flag.String("template", "", "Path to a template model")
	flagWorkers  = flag.Int("workers", 0, "Concurrent submesh encoders")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagStrict {
		cfg.Conversion.Strict = true
	}
	if *flagSkeleton != "" {
		cfg.Skeleton.Path = *flagSkeleton
	}
	if *flagTemplate != "" {
		cfg.Template.Path = *flagTemplate
	}
	if *flagWorkers > 0 {
		cfg.Conversion.Workers = *flagWorkers
	}
}
