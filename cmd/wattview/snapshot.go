package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"wattview/internal/client"
	"wattview/internal/db"
	"wattview/internal/timeutil"
)

// newSnapshotCmd fetches every dashboard facet from a running
// server in one parallel refresh and prints the combined result.
func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var baseURL, date, floor string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch all dashboard facets from a running server",
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

			if baseURL == "" {
				baseURL = "http://" + cfg.Addr()
			}

			c := client.NewClient(baseURL)
			o := client.NewOrchestrator(c,
				client.NewCache(cfg.Cache.Size, cfg.Cache.TTL.Std()),
				logger)

			f := db.Filter{Floor: db.ParseFloorFilter(floor)}
			if timeutil.IsValidDate(date) {
				f.Date = date
			}
			if err := o.Refresh(cmd.Context(), f); err != nil {
				return err
			}

			out := make(map[string]any, len(client.Facets()))
			for _, facet := range client.Facets() {
				out[string(facet)] = o.Snapshot(facet).Value
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encoding snapshot: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "",
		"server base URL (default the configured listen address)")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&floor, "floor", "all", "floor number or \"all\"")
	return cmd
}
