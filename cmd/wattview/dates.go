package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDatesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List all dates with readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			dates, err := database.ListDates(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}
