package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duplicator/internal/apply/defs"
)

var defsCmd = &cobra.Command{
	Use:   "defs",
	Short: "Definitions apply: create missing metaobject/metafield definitions",
}

var defsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create destination definitions missing relative to --dir/definitions.json",
	RunE:  runDefsApply,
}

func init() {
	defsCmd.AddCommand(defsApplyCmd)
}

func runDefsApply(cmd *cobra.Command, args []string) error {
	stats, err := defs.Apply(cmd.Context(), destClient(), cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("defs apply: %w", err)
	}

	fmt.Printf("definitions total=%d created=%d skipped=%d failed=%d\n", stats.Total, stats.Created, stats.Skipped, stats.Failed)
	for _, e := range stats.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("defs apply: %d definition(s) failed", stats.Failed)
	}
	return nil
}
