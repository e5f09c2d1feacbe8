package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cyris/internal/config"
	"cyris/internal/storage"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations that have not been applied",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back (0 for all)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openDB() (*storage.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.UseDatabase() {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return storage.NewDB(dbConfig(cfg))
}

func dbConfig(cfg *config.Config) storage.DBConfig {
	dbCfg := storage.DefaultDBConfig()
	dbCfg.DSN = cfg.Database.URL
	dbCfg.MaxOpenConns = 2
	dbCfg.MaxIdleConns = 1
	return dbCfg
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Migrate()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations\n", n)
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := storage.MigrateDown(db.Conn().DB, migrateSteps)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migrations\n", n)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pending, err := storage.PendingMigrations(db.Conn().DB)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	}
	for _, id := range pending {
		fmt.Fprintln(cmd.OutOrStdout(), "pending", id)
	}
	return nil
}
