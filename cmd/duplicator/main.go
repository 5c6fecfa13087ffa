// Package main implements the duplicator CLI — the entry point and command
// registration hub. The actual command implementations are split across
// multiple cmd_*.go files for maintainability.
//
// File Index:
//   - main.go       - entry point, rootCmd, global flags, init()
//   - cmd_dump.go   - dumpCmd, runDump()
//   - cmd_defs.go   - defsCmd, defsApplyCmd, runDefsApply()
//   - cmd_apply.go  - applyCmd, runApply()
//   - cmd_enrich.go - enrichCmd, runEnrich()
//   - cmd_diff.go   - diffCmd, runDiff()
//   - cmd_drop.go   - dropCmd, dropFilesCmd, runDropFiles()
//   - clients.go    - sourceClient(), destClient()
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"duplicator/internal/config"
	"duplicator/internal/logging"
)

var (
	// Global flags
	dirFlag string
	yesFlag bool

	cfg *config.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "duplicator",
	Short: "Copy one storefront tenant's custom data plane into another",
	Long: `duplicator copies one tenant's products, collections, blogs, pages,
metaobjects, metafields, and files into a second tenant via the admin GraphQL
API, keyed by natural key and safe to re-run. Menus, redirects, policies,
discounts, and markets are written to the dump directory but not applied.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dirFlag != "" {
			loaded.OutputDir = dirFlag
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "dump/apply working directory (overrides OUTPUT_DIR)")
	rootCmd.PersistentFlags().BoolVar(&yesFlag, "yes", false, "skip interactive confirmation prompts")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(defsCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(dropCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
