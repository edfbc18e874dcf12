package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumeris/pubmark/records"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the processing record from the output directory",
	Long: `Rescans <out>/markdown/ and reconciles the processing record: every
markdown file found marks its PMID as success. Use after moving output
around or recovering from an interrupted batch.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().String("out", "data", "output directory")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")

	store, err := records.Open(filepath.Join(outDir, "record_map.csv"))
	if err != nil {
		return err
	}

	found, err := store.Rescan(filepath.Join(outDir, "markdown"), time.Now().UTC())
	if err != nil {
		return err
	}
	if err := store.Flush(); err != nil {
		return err
	}

	fmt.Printf("reconciled %d markdown files, %d records total\n", found, store.Len())
	return nil
}
