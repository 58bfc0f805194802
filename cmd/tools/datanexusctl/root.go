package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datanexusctl",
		Short: "Operate a DataNexus marketplace database",
		Long: `datanexusctl applies schema migrations and seeds demo data.

Connection settings are read from DATABASE_URL (or --database-url) and an
optional .env file in the working directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().String("database-url", "", "Postgres connection URL (defaults to $DATABASE_URL)")
	cmd.AddCommand(newMigrateCmd(), newSeedCmd())
	return cmd
}
