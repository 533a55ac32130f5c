// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the acquire-cli command, a thin
// demonstration surface over pkg/manager. Grounded on the teacher's
// cmd/research-engine/main.go (rootCmd, PersistentPreRunE loading
// .secrets/, cobra.OnInitialize(initConfig)).
package main

import (
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/litreview/papersearch/internal/config"
	"github.com/litreview/papersearch/pkg/manager"
)

var version = "dev"

var cfg config.Config
var mgr *manager.Manager

var rootCmd = &cobra.Command{
	Use:   "acquire-cli",
	Short: "Resumable, multi-source literature acquisition",
	Long: `acquire-cli drives a concurrent, resumable literature-acquisition engine:
it queues searches against OpenAlex, Semantic Scholar, arXiv, Crossref, and
PatentsView, fetches them through a rate-limited and circuit-broken worker
pool with a durable on-disk page cache, and deduplicates the results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		cfgFile, _ := cmd.Flags().GetString("config")
		secretsDir, _ := cmd.Flags().GetString("secrets")
		loaded, err := config.Load(cfgFile, secretsDir)
		if err != nil {
			return err
		}
		cfg = loaded
		m, err := manager.Open(cfg)
		if err != nil {
			return err
		}
		mgr = m
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if mgr == nil {
			return nil
		}
		return mgr.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./papersearch.yaml or ~/.config/papersearch/papersearch.yaml)")
	rootCmd.PersistentFlags().String("secrets", ".secrets/", "directory of credential files (openalex-email, semantic-scholar-api-key, crossref-mailto, patentsview-api-key)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zlog.Error().Err(err).Msg("acquire-cli failed")
		os.Exit(1)
	}
}
