// Package config loads CLI settings from flags, ADJUDICATOR_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the CLI settings.
type Config struct {
	LogFormat              string        `mapstructure:"log_format"`
	HighRiskThreshold      int           `mapstructure:"high_risk_threshold"`
	AutoApprovalConfidence int           `mapstructure:"auto_approval_confidence"`
	AdvisorTimeout         time.Duration `mapstructure:"advisor_timeout"`
	AdvisorRetries         uint          `mapstructure:"advisor_retries"`
}

// Load reads configuration. path may be empty; a missing explicit file is
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADJUDICATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_format", "text")
	v.SetDefault("high_risk_threshold", 70)
	v.SetDefault("auto_approval_confidence", 75)
	v.SetDefault("advisor_timeout", 5*time.Second)
	v.SetDefault("advisor_retries", 3)

	// Unmarshal only sees env values for keys viper already knows about.
	for _, key := range []string{"log_format", "high_risk_threshold", "auto_approval_confidence", "advisor_timeout", "advisor_retries"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	// 0 would be replaced by the engine default, so it is refused here.
	if c.HighRiskThreshold < 1 || c.HighRiskThreshold > 100 {
		errs = append(errs, fmt.Errorf("high_risk_threshold %d outside 1..100", c.HighRiskThreshold))
	}
	if c.AutoApprovalConfidence < 1 || c.AutoApprovalConfidence > 100 {
		errs = append(errs, fmt.Errorf("auto_approval_confidence %d outside 1..100", c.AutoApprovalConfidence))
	}
	if c.AdvisorTimeout <= 0 {
		errs = append(errs, errors.New("advisor_timeout must be positive"))
	}
	return errors.Join(errs...)
}
