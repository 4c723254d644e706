// Command schedctl is the operator tool of the scheduling service: schema migrations, one-shot
// status sweeps and a tail of the appointment event stream.
package main

import (
	"log/slog"
	"os"

	"github.com/rdvmed/clinicsched/libs/config"
	"github.com/rdvmed/clinicsched/libs/runtime"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load env", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger("schedctl", config.String("LOG_LEVEL", "info"))
	ctx, stop := runtime.SignalContext()
	err := rootCmd(logger).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "schedctl",
		Short:         "Operate the clinic scheduling service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("database-url", "", "Postgres URL (defaults to $DATABASE_URL)")

	root.AddCommand(migrateCmd())
	root.AddCommand(sweepCmd(logger))
	root.AddCommand(eventsCmd(logger))
	return root
}

func databaseURL(cmd *cobra.Command) (string, error) {
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		return v, nil
	}
	return config.RequiredString("DATABASE_URL")
}
