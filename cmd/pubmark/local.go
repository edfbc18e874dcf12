package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumeris/pubmark/convert"
	"github.com/lumeris/pubmark/fetch"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Convert already-downloaded HTML files to markdown",
	Long: `Converts every .html file in --dir to markdown under <out>/markdown/,
bypassing the resolver and fetcher. Output files are named by PMCID,
taken from the source filename when it looks like one, otherwise from
the document's own metadata.`,
	RunE: runLocal,
}

func init() {
	localCmd.Flags().String("dir", "data/html", "directory of .html files")
	localCmd.Flags().String("out", "data", "output directory")
	localCmd.Flags().Bool("overwrite", false, "replace existing markdown files")
	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	outDir, _ := cmd.Flags().GetString("out")
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read html dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".html") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	markdownDir := filepath.Join(outDir, "markdown")
	if err := os.MkdirAll(markdownDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	conv := convert.New(convert.Config{})
	log := slog.Default()

	var converted, failed int
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("read failed", "file", name, "error", err)
			failed++
			continue
		}

		markdown, err := conv.Convert(raw)
		if err != nil {
			log.Warn("convert failed", "file", name, "error", err)
			failed++
			continue
		}

		outName := strings.TrimSuffix(name, ".html")
		if !fetch.ValidPMCID(outName) {
			if pmcid := pmcidFromMarkdown(markdown); pmcid != "" {
				outName = pmcid
			}
		}
		outPath := filepath.Join(markdownDir, outName+".md")

		if _, err := os.Stat(outPath); err == nil && !overwrite {
			log.Debug("exists, skipping", "path", outPath)
			continue
		}

		if err := os.WriteFile(outPath, []byte(markdown), 0o644); err != nil {
			log.Warn("write failed", "path", outPath, "error", err)
			failed++
			continue
		}
		log.Info("converted", "file", name, "path", outPath)
		converted++
	}

	fmt.Printf("converted: %d  failed: %d\n", converted, failed)
	return nil
}

// pmcidFromMarkdown reads the PMCID metadata line of a converted document.
func pmcidFromMarkdown(markdown string) string {
	const marker = "**PMCID:** "
	idx := strings.Index(markdown, marker)
	if idx < 0 {
		return ""
	}
	rest := markdown[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
