package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duplicator/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Attach list-reference annotations across --dir's dump files",
	RunE:  runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	stats, err := enrich.EnrichDir(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	fmt.Printf("enrich: %d file(s) processed, %d field(s) enriched\n", stats.FilesProcessed, stats.FieldsEnriched)
	return nil
}
