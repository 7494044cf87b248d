package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/adjudicator/internal/config"
)

var (
	configPath string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "adjudicator",
	Short:        "Claims adjudication and benefit utilization engine",
	Long:         "Validates benefit catalogs and replays claim scenarios through the adjudication engine.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (YAML); ADJUDICATOR_* env vars override it")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")
}

// loadConfig resolves config, letting the --log-format flag win.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
