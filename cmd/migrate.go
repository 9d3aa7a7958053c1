package main

import (
	"github.com/spf13/cobra"

	"github.com/hearthkeep/hearth/config"
	srv "github.com/hearthkeep/hearth/internal/server"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Migrations should run without agent keys in the
			// environment, so a failed config load falls back to the
			// DATABASE_URL / POSTGRES_* variables inside Migrate.
			var dsn string
			if cfg, err := config.LoadConfig(cfgPath); err == nil {
				if d, err := cfg.Storage.Postgres.DSN(); err == nil {
					dsn = d
				}
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/hearth.yaml)")

	return migrate
}
