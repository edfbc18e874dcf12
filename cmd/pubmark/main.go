// Package main is the entry point for the pubmark CLI: batch conversion
// of PubMed articles to markdown, local HTML reprocessing, record
// maintenance, and an MCP tool surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pubmark",
	Short: "Fetch PubMed/PMC articles and convert them to markdown",
	Long: `pubmark resolves PMIDs to PMCIDs, fetches the article pages, and
converts their HTML into structured markdown. A flat CSV record tracks
which PMIDs have been processed so batches are idempotent and resumable.`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pubmark.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pubmark")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.BindEnv("email", "NCBI_EMAIL")
	viper.BindEnv("tool", "NCBI_TOOL")
	viper.BindEnv("log_level", "LOG_LEVEL")
	viper.SetDefault("tool", "pubmark")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	var lvl slog.Level
	switch viper.GetString("log_level") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, for
// graceful batch stops.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
