package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wattview/internal/config"
	"wattview/internal/db"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wattview",
		Short: "Power-sensor analytics server",
		Long: `wattview rolls per-second power readings up into hourly and
daily summary tables and serves energy analytics over a REST API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath,
		"config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose,
		"verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newRollupCmd(opts),
		newDatesCmd(opts),
		newSnapshotCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	return config.Load(o.configPath)
}

func (o *rootOptions) newLogger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDatabase(cfg config.Config) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return db.Open(cfg.Database.Path)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(),
				"wattview %s (commit %s, built %s)\n",
				version, commit, buildDate)
		},
	}
}
