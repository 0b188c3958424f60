package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/database"
)

var (
	migrateVersion uint
	migrateForce   int
	migrateDown    bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		logger, sync, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer sync()

		db, err := database.Connect(cmd.Context(), cfg.Database(), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		migrations := database.NewMigrationService(logger, &database.MigrationConfig{
			MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
			Version:             migrateVersion,
			Force:               migrateForce,
			Down:                migrateDown,
		})
		return migrations.MigratePostgres(db.SQLDB(), cfg.DatabaseName)
	},
}

func init() {
	migrateCmd.Flags().UintVar(&migrateVersion, "version", 0, "migrate to this version instead of the latest")
	migrateCmd.Flags().IntVar(&migrateForce, "force", 0, "mark the schema clean at this version first")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back every migration")
}
