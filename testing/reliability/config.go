package reliability

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ReliabilityConfig holds configuration for reliability testing.
// Level is "basic" or "stress"; Duration bounds each stress test.
type ReliabilityConfig struct {
	Level         string        `envconfig:"LEVEL"`
	Duration      time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines int           `envconfig:"MAX_GOROUTINES" default:"100"`
}

// getReliabilityConfig reads WAVEZ_RELIABILITY_* environment variables.
// Unparseable values fall back to the defaults.
func getReliabilityConfig() ReliabilityConfig {
	var cfg ReliabilityConfig
	if err := envconfig.Process("wavez_reliability", &cfg); err != nil {
		return ReliabilityConfig{
			Level:         cfg.Level,
			Duration:      30 * time.Second,
			MaxGoroutines: 100,
		}
	}
	return cfg
}
