package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/braid/internal/config"
	"github.com/rohankatakam/braid/internal/database"
	"github.com/rohankatakam/braid/internal/logging"
)

var (
	Version = "dev"
)

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "braid",
	Short: "Operational tooling for the braid graph datastore",
	Long: `braid - graph datastore tooling

Administrative commands for a braid deployment. Configuration comes from
BRAID_* environment variables, a .env file, or braid.yaml; see the
migrate and stats subcommands.`,
	Version: Version,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the datastore schema to the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := newCLILogger()
		if err := database.CreateSchema(cfg.DSN, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		logger.Info("migration complete")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print vertex and edge counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Initialize(logging.Config{Debug: cfg.Debug || verbose})

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		ds, err := database.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer ds.Close()

		vertices, err := ds.VertexCount(ctx)
		if err != nil {
			return err
		}
		edges, err := ds.EdgeCount(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("vertices: %d\nedges:    %d\n", vertices, edges)
		return nil
	},
}

func newCLILogger() *logrus.Logger {
	logger := logrus.New()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
}
