package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duplicator/internal/apply"
)

var maxMetaobjectPasses int

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply --dir's dumped entities into the destination tenant",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().IntVar(&maxMetaobjectPasses, "max-metaobject-passes", 1, "bounded retry passes for cross-referencing metaobjects (1 = off)")
}

func runApply(cmd *cobra.Command, args []string) error {
	pipeline := apply.NewPipeline(destClient(), cfg.OutputDir)
	pipeline.WorkerCount = cfg.WorkerCount
	pipeline.MaxMetaobjectPasses = maxMetaobjectPasses

	report, err := pipeline.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	for _, s := range report.Phases {
		fmt.Printf("%-14s total=%d created=%d updated=%d skipped=%d failed=%d\n", s.Phase, s.Total, s.Created, s.Updated, s.Skipped, s.Failed)
		for _, e := range s.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}

	if report.Failed() {
		return fmt.Errorf("apply: one or more phases had failures — see above")
	}
	return nil
}
