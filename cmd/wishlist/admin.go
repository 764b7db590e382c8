package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/api"
	"github.com/Kerhoff/wishlist/internal/config"
	"github.com/Kerhoff/wishlist/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema to the current version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.StorageBackend != config.BackendPostgres {
			return errors.New("migrate needs the postgres backend, set DATABASE_URL")
		}
		if err := a.svc.Boot(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	},
}

var (
	statsFrom string
	statsTo   string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the wishlist conversion summary and top products as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := api.ParseRangeBound(statsFrom, false)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		to, err := api.ParseRangeBound(statsTo, true)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		rng := models.StatsRange{From: from, To: to}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.svc.Tracker().StatsSummary(cmd.Context(), rng)
		if err != nil {
			return err
		}
		products, err := a.svc.Tracker().ProductStats(cmd.Context(), rng)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"summary":  summary,
			"products": products,
		})
	},
}

var purgeOlderThan time.Duration

var purgeGuestsCmd = &cobra.Command{
	Use:   "purge-guests",
	Short: "Delete guest wishlist items that were not touched recently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		purged, err := a.svc.PurgeGuestItems(cmd.Context(), purgeOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d guest items\n", purged)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "start date (YYYY-MM-DD or RFC 3339)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "end date, inclusive (YYYY-MM-DD or RFC 3339)")
	purgeGuestsCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 30*24*time.Hour, "age of the newest change to keep")
}
