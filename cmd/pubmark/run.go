package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lumeris/pubmark/convert"
	"github.com/lumeris/pubmark/fetch"
	"github.com/lumeris/pubmark/idconv"
	"github.com/lumeris/pubmark/pipeline"
	"github.com/lumeris/pubmark/records"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert a list of PMIDs to markdown",
	Long: `Reads a newline-delimited PMID list, resolves each PMID to a PMCID,
fetches the article page, converts it to markdown under <out>/markdown/,
and updates the processing record. PMIDs already marked success are
skipped unless --overwrite is set.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().String("input", "", "path to newline-delimited PMID list (required)")
	runCmd.Flags().String("out", "data", "output directory")
	runCmd.Flags().Bool("overwrite", false, "reprocess PMIDs already marked success")
	runCmd.Flags().Int("workers", 1, "concurrent workers")
	runCmd.Flags().Float64("rps", 2, "max outbound requests per second")
	runCmd.Flags().Bool("browser", false, "use headless Chrome for all fetches")
	runCmd.Flags().Bool("save-html", true, "keep raw HTML under <out>/html/")
	runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	email := viper.GetString("email")
	if email == "" {
		return fmt.Errorf("NCBI_EMAIL is required (set it in the environment or pubmark.yaml)")
	}

	input, _ := cmd.Flags().GetString("input")
	outDir, _ := cmd.Flags().GetString("out")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	workers, _ := cmd.Flags().GetInt("workers")
	rps, _ := cmd.Flags().GetFloat64("rps")
	forceBrowser, _ := cmd.Flags().GetBool("browser")
	saveHTML, _ := cmd.Flags().GetBool("save-html")

	pmids, err := readPMIDList(input)
	if err != nil {
		return err
	}
	if len(pmids) == 0 {
		return fmt.Errorf("no PMIDs in %s", input)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	store, err := records.Open(filepath.Join(outDir, "record_map.csv"))
	if err != nil {
		return err
	}

	resolver := idconv.New(idconv.Config{
		Email: email,
		Tool:  viper.GetString("tool"),
	})
	httpFetcher := fetch.New(fetch.Config{})
	browser := fetch.NewBrowser(fetch.BrowserConfig{Logger: slog.Default()})
	defer browser.Close()

	cfg := pipeline.Config{
		Resolver:          resolver,
		Fetcher:           httpFetcher,
		Browser:           browser,
		Converter:         convert.New(convert.Config{}),
		Records:           store,
		OutDir:            outDir,
		Overwrite:         overwrite,
		SaveHTML:          saveHTML,
		Workers:           workers,
		RequestsPerSecond: rps,
		Logger:            slog.Default(),
	}
	if forceBrowser {
		cfg.Fetcher = browser
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := p.Run(ctx, pmids)
	printSummary(summary)
	return err
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("succeeded: %d  failed: %d  skipped: %d\n",
		s.Succeeded, s.Failed, s.Skipped)
	for _, f := range s.Failures {
		fmt.Printf("  %s: %s (%v)\n", f.PMID, f.Stage, f.Err)
	}
}

// readPMIDList reads a newline-delimited PMID file. Blank lines and
// #-comments are skipped.
func readPMIDList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PMID list: %w", err)
	}
	defer f.Close()

	var pmids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pmids = append(pmids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read PMID list: %w", err)
	}
	return pmids, nil
}
