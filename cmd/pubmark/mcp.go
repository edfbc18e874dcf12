package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lumeris/pubmark/convert"
	"github.com/lumeris/pubmark/fetch"
	"github.com/lumeris/pubmark/idconv"
	"github.com/lumeris/pubmark/pipeline"
	"github.com/lumeris/pubmark/records"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the resolver and converter as MCP tools on stdio",
	RunE:  runMCP,
}

func init() {
	mcpCmd.Flags().String("out", "data", "output directory")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	email := viper.GetString("email")
	if email == "" {
		return fmt.Errorf("NCBI_EMAIL is required (set it in the environment or pubmark.yaml)")
	}

	outDir, _ := cmd.Flags().GetString("out")
	store, err := records.Open(filepath.Join(outDir, "record_map.csv"))
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Resolver:  idconv.New(idconv.Config{Email: email, Tool: viper.GetString("tool")}),
		Fetcher:   fetch.New(fetch.Config{}),
		Converter: convert.New(convert.Config{}),
		Records:   store,
		OutDir:    outDir,
		Logger:    slog.Default(),
	})
	if err != nil {
		return err
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "pubmark", Version: version}, nil)
	p.RegisterMCP(srv)

	ctx, cancel := signalContext()
	defer cancel()

	return srv.Run(ctx, &mcp.StdioTransport{})
}
