package config

import (
	"fmt"
	"time"

	"github.com/kbukum/asyncify/logger"
	"github.com/kbukum/asyncify/validation"
)

// Error policies select what a bridge does with a routed failure when the
// caller supplied no error handler.
const (
	ErrorPolicyPanic = "panic"
	ErrorPolicyLog   = "log"
)

// Config is the top-level configuration of an application embedding bridges.
type Config struct {
	Name          string              `yaml:"name" mapstructure:"name" validate:"required"`
	Logging       logger.Config       `yaml:"logging" mapstructure:"logging"`
	Bridge        BridgeConfig        `yaml:"bridge" mapstructure:"bridge"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// BridgeConfig holds the defaults applied to bridges built with FromConfig.
type BridgeConfig struct {
	// Buffering retains values emitted while no pull is waiting.
	Buffering bool `yaml:"buffering" mapstructure:"buffering"`
	// ErrorPolicy is "panic" or "log".
	ErrorPolicy string `yaml:"error_policy" mapstructure:"error_policy" validate:"oneof=panic log"`
}

// ObservabilityConfig configures the OTLP exporters for bridge metrics and spans.
type ObservabilityConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure    bool          `yaml:"insecure" mapstructure:"insecure"`
	Environment string        `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development staging production"`
	Interval    time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
	SampleRate  float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// Defaults returns the viper defaults for every Config key.
func Defaults(name string) map[string]any {
	return map[string]any{
		"name":                      name,
		"logging.level":             "info",
		"logging.format":            logger.FormatConsole,
		"logging.output":            "stderr",
		"logging.no_color":          false,
		"logging.timestamp":         true,
		"logging.caller":            false,
		"bridge.buffering":          true,
		"bridge.error_policy":       ErrorPolicyPanic,
		"observability.enabled":     false,
		"observability.endpoint":    "localhost:4318",
		"observability.insecure":    true,
		"observability.environment": "development",
		"observability.interval":    "15s",
		"observability.sample_rate": 1.0,
	}
}

// Load reads, defaults and validates the configuration for name.
func Load(name string, opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadConfig(name, &cfg, Defaults(name), opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills values a partial literal Config leaves empty.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	if c.Bridge.ErrorPolicy == "" {
		c.Bridge.ErrorPolicy = ErrorPolicyPanic
	}
}

// Validate checks struct tags first, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return validation.New().
		Check(!c.Observability.Enabled || c.Observability.Endpoint != "", "observability.endpoint", "is required when observability is enabled").
		Check(!c.Observability.Enabled || c.Observability.Interval > 0, "observability.interval", "must be positive when observability is enabled").
		Validate()
}
