package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"speech-to-pdf/internal/db"
)

var (
	// Version is set at build time via ldflags
	Version = "1.0.0"

	databaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "speechctl",
	Short: "Administration tool for the speech-to-pdf service",
	Long: `Administration tool for the speech-to-pdf service.
- migrate creates the database schema
- init-db also creates the default admin account`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"),
		"postgres:// or sqlite:// database url (default $DATABASE_URL, then sqlite://./app.db)")
	rootCmd.AddCommand(migrateCmd, initDBCmd, versionCmd)
}

func openDB(ctx context.Context) (*sqlx.DB, error) {
	url := databaseURL
	if url == "" {
		url = "sqlite://./app.db"
	}
	conn, err := db.Open(url)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of speechctl",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
		return nil
	},
}
