package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"speech-to-pdf/internal/accounts"
)

var adminUsername, adminEmail, adminPassword string

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the schema and the default admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		created, err := accounts.NewService(conn, zap.NewNop()).Bootstrap(cmd.Context(), adminUsername, adminEmail, adminPassword)
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		out := cmd.OutOrStdout()
		if !created {
			fmt.Fprintf(out, "Admin user %q already exists\n", adminUsername)
			return nil
		}
		fmt.Fprintln(out, "Database initialized")
		fmt.Fprintf(out, "Admin username: %s\n", adminUsername)
		if adminPassword == "admin" {
			fmt.Fprintln(out, "Change the default admin password after the first login")
		}
		return nil
	},
}

func init() {
	initDBCmd.Flags().StringVar(&adminUsername, "username", "admin", "admin username")
	initDBCmd.Flags().StringVar(&adminEmail, "email", "admin@example.com", "admin email")
	initDBCmd.Flags().StringVar(&adminPassword, "password", "admin", "admin password")
}
