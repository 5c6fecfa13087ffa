package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"duplicator/internal/filelib"
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Destructive bulk-delete operations on the destination tenant",
}

var dropFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "Delete every file in the destination tenant's file library",
	RunE:  runDropFiles,
}

func init() {
	dropCmd.AddCommand(dropFilesCmd)
}

func runDropFiles(cmd *cobra.Command, args []string) error {
	confirm := "delete"
	if !yesFlag {
		fmt.Print(`This deletes every file in the destination tenant's file library. Type "delete" to confirm: `)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		confirm = trimNewline(line)
	}

	syncer := filelib.NewSyncer(destClient())
	stats, err := syncer.Drop(cmd.Context(), confirm)
	if err != nil {
		return fmt.Errorf("drop files: %w", err)
	}

	fmt.Printf("drop files: total=%d deleted=%d failed=%d\n", stats.Total, stats.Deleted, stats.Failed)
	if stats.Failed > 0 {
		return fmt.Errorf("drop files: %d batch(es) failed", stats.Failed)
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
