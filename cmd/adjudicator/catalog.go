package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/internal/logging"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Benefit catalog tools",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate a benefit catalog YAML file",
	RunE:  runCatalogValidate,
}

func init() {
	catalogValidateCmd.Flags().StringVar(&catalogFile, "file", "", "Catalog YAML file")
	_ = catalogValidateCmd.MarkFlagRequired("file")
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.LogFormat)

	snap, err := catalog.LoadFile(catalogFile)
	if err != nil {
		log.Error().Err(err).Str("file", catalogFile).Msg("catalog rejected")
		return err
	}
	published, err := catalog.New().Publish(snap)
	if err != nil {
		log.Error().Err(err).Str("file", catalogFile).Msg("catalog rejected")
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range published.CategoryList() {
		fmt.Fprintf(out, "%-16s %3d%%  limit %-14s %s\n", c.ID, c.CoveragePercent, c.PeriodicLimit, c.ResetRule)
	}
	log.Info().Str("file", catalogFile).Int("categories", len(published.CategoryList())).Msg("catalog valid")
	return nil
}
