package logger

import (
	"fmt"
	"slices"
	"strings"
)

var (
	validLevels    = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	validEncodings = []string{"json", "console"}
)

// Config is the configuration for the logger
type Config struct {
	// Level, debug, info, warn, error, dpanic, panic, fatal
	// default: "info"
	Level string `yaml:"level"`
	// Encoding, json or console
	// default: "json"
	Encoding string `yaml:"encoding"`
	// default: []string{"stdout"}
	OutputPaths []string `yaml:"output_paths"`
	// default: []string{"stderr"}
	ErrorOutputPaths []string `yaml:"error_output_paths"`
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() *Config {
	return &Config{
		Level:            "info",
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// WithDefaults returns a copy of c with empty fields taken from
// DefaultConfig. A nil c yields DefaultConfig.
func (c *Config) WithDefaults() *Config {
	defaults := DefaultConfig()
	if c == nil {
		return defaults
	}
	merged := *c
	if merged.Level == "" {
		merged.Level = defaults.Level
	}
	if merged.Encoding == "" {
		merged.Encoding = defaults.Encoding
	}
	if len(merged.OutputPaths) == 0 {
		merged.OutputPaths = defaults.OutputPaths
	}
	if len(merged.ErrorOutputPaths) == 0 {
		merged.ErrorOutputPaths = defaults.ErrorOutputPaths
	}
	return &merged
}

// Validate validates the configuration for the logger
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, c.Level) {
		return ErrInvalidLevel(c.Level, fmt.Errorf("must be one of: %s", strings.Join(validLevels, ", ")))
	}
	if !slices.Contains(validEncodings, c.Encoding) {
		return ErrInvalidEncoding(c.Encoding)
	}
	return nil
}
