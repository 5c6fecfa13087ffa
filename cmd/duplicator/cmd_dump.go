package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duplicator/internal/dump"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the source tenant's custom data plane to --dir",
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	session := dump.NewSession(sourceClient(), cfg.OutputDir)

	result, err := session.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	for _, s := range result.Stats {
		fmt.Printf("%-20s written=%d skipped=%d\n", s.EntityFile, s.Written, s.Skipped)
	}
	fmt.Printf("discovered %d metaobject type(s): %v\n", len(result.MetaobjectTypes), result.MetaobjectTypes)
	return nil
}
