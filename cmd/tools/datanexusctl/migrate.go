package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/datanexus/internal/db"
)

func databaseURL(cmd *cobra.Command) (string, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if strings.TrimSpace(url) == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if strings.TrimSpace(url) == "" {
		return "", errors.New("DATABASE_URL is not set")
	}
	return url, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := db.NewMigrator(url)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := db.Up(m); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			version, dirty, _ := m.Version()
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Example: `  # Roll back the latest migration
  datanexusctl migrate down

  # Roll back everything
  datanexusctl migrate down --steps 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := db.NewMigrator(url)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := db.Down(m, steps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rollback complete")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back; 0 rolls back all")

	cmd.AddCommand(up, down)
	return cmd
}
