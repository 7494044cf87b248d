package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/adjudicator"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/internal/logging"
)

var (
	simCatalog  string
	simScenario string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a claim scenario against an in-memory engine",
	Long: "Loads a benefit catalog and a scenario file, runs every submit, void, appeal " +
		"and resolve step through the engine with a scripted advisor, then prints verdicts and benefit usage.",
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simCatalog, "catalog", "", "Catalog YAML file")
	f.StringVar(&simScenario, "scenario", "", "Scenario YAML file")
	_ = simulateCmd.MarkFlagRequired("catalog")
	_ = simulateCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.LogFormat)

	snap, err := catalog.LoadFile(simCatalog)
	if err != nil {
		log.Error().Err(err).Str("file", simCatalog).Msg("catalog load failed")
		return err
	}
	scenario, err := LoadScenario(simScenario)
	if err != nil {
		log.Error().Err(err).Str("file", simScenario).Msg("scenario load failed")
		return err
	}

	log.Info().Int("steps", len(scenario.Steps)).Msg("simulation started")
	err = Simulate(cmd.Context(), snap, scenario, cmd.OutOrStdout(),
		adjudicator.WithLogger(logging.Slog(log)),
		adjudicator.WithHighRiskThreshold(cfg.HighRiskThreshold),
		adjudicator.WithAutoApprovalConfidence(cfg.AutoApprovalConfidence),
		adjudicator.WithAdvisorTimeout(cfg.AdvisorTimeout),
		adjudicator.WithAdvisorRetries(cfg.AdvisorRetries),
	)
	if err != nil {
		log.Error().Err(err).Msg("simulation failed")
		return err
	}
	log.Info().Msg("simulation finished")
	return nil
}
