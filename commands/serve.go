package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/db"
	"github.com/onnwee/chanstats/server"
)

var (
	serveAddr   *string
	migrateDown *bool
)

func init() {
	serveAddr = serveCmd.Flags().String("addr", "", "Listen address (overrides HTTP_ADDR).")
	rootCmd.AddCommand(serveCmd)

	migrateDown = migrateCmd.Flags().Bool("down", false, "Roll back the most recent migration instead of applying pending ones.")
	rootCmd.AddCommand(migrateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--addr :8080]",
	Short: "Serves stored channel metrics, health checks and prometheus metrics over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
		database, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB(database)

		addr := cfg.HTTPAddr
		if *serveAddr != "" {
			addr = *serveAddr
		}
		return server.Start(cmd.Context(), server.SQLStore{DB: database}, addr, server.Options{
			CORSOrigins: cfg.CORSOrigins,
			TopN:        cfg.TopN,
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [--down]",
	Short: "Applies or rolls back the postgres schema.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DBDsn == "" {
			return db.ErrNoDSN
		}
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer closeDB(database)

		if *migrateDown {
			if err := db.MigrateDown(database); err != nil {
				return err
			}
		} else if err := migrate(cmd.Context(), database); err != nil {
			return err
		}
		version, dirty, err := db.MigrationVersion(database)
		if err != nil {
			return err
		}
		slog.Info("schema migrated", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty), slog.String("component", "db_migrate"))
		return nil
	},
}
