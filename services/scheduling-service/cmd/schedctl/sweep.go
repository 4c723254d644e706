package main

import (
	"log/slog"

	"github.com/rdvmed/clinicsched/libs/config"
	"github.com/rdvmed/clinicsched/libs/db"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/storage"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/sweeper"
	"github.com/spf13/cobra"
)

// sweepCmd runs a single sweeper tick, for cron-driven deployments that disable the in-process loop.
func sweepCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one status sweep against the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			loc, err := config.Location("SCHEDULE_TIMEZONE", "Local")
			if err != nil {
				return err
			}
			pool, err := db.Open(cmd.Context(), url, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			s := sweeper.New(storage.New(pool, storage.Options{}), sweeper.Options{Location: loc, Logger: logger})
			sum, err := s.Tick(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("started=%d finished=%d\n", len(sum.Started), len(sum.Finished))
			return nil
		},
	}
}
