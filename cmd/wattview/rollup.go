package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wattview/internal/rollup"
)

func newRollupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollup",
		Short: "Rebuild the hourly and daily summary tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			out := cmd.OutOrStdout()
			builder := rollup.New(database, logger,
				rollup.WithProgressEvery(cfg.Rollup.ProgressEvery),
				rollup.WithProgress(func(p rollup.Progress) {
					fmt.Fprintf(out,
						"\r%s: %d/%d dates, %d rows, %d skipped",
						p.Phase, p.DatesDone, p.DatesTotal,
						p.RowsWritten, p.Skipped)
				}))

			if err := builder.Run(cmd.Context()); err != nil {
				fmt.Fprintln(out)
				return err
			}
			fmt.Fprintln(out, "\nrollup complete")
			return nil
		},
	}
}
