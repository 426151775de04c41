package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Gidwell/jiro/internal/database"
)

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migration commands",
	}

	migrateCmd.AddCommand(newMigrateUpCommand())
	migrateCmd.AddCommand(newMigrateDownCommand())

	return migrateCmd
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, dialect, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			return database.MigrateUp(db, dialect)
		},
	}
}

func newMigrateDownCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert all database migrations, dropping every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("migrate down drops all data; pass --yes to continue")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, dialect, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			return database.MigrateDown(db, dialect)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm dropping all data")
	return cmd
}
