/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rollcall/apiserver/internal/db"
	"github.com/rollcall/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var (
	adminUsername string
	adminEmail    string
	adminPassword string
)

// adminCmd groups account administration commands that run directly
// against the database.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer user accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an unlocked ADMIN account",
	Long: `Create an unlocked ADMIN account. Registration over HTTP needs an
existing ADMIN, so use this to create the first one. The password may be
given with --password or the ADMIN_PASSWORD environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if password == "" {
			return errors.New("a password is required (--password or ADMIN_PASSWORD)")
		}

		return withServices(cmd.Context(), func(ctx context.Context, svcs *server.Services) error {
			user, err := svcs.Users.CreateAdmin(ctx, adminUsername, adminEmail, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Username, user.ID)
			return nil
		})
	},
}

var adminDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Prevent a user from signing in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, false)
	},
}

var adminEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Allow a disabled user to sign in again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, true)
	},
}

var adminShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a user's account state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svcs *server.Services) error {
			user, err := svcs.Users.GetByUsername(ctx, adminUsername)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "username: %s\n", user.Username)
			fmt.Fprintf(out, "email:    %s\n", user.Email)
			fmt.Fprintf(out, "role:     %s\n", user.Role)
			fmt.Fprintf(out, "locked:   %t\n", user.Locked)
			fmt.Fprintf(out, "enabled:  %t\n", user.Enabled)
			fmt.Fprintf(out, "created:  %s\n", user.CreatedAt.Format(time.RFC3339))
			return nil
		})
	},
}

func setEnabled(cmd *cobra.Command, enabled bool) error {
	return withServices(cmd.Context(), func(ctx context.Context, svcs *server.Services) error {
		user, err := svcs.Users.SetEnabled(ctx, adminUsername, enabled)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", user.Username, user.Enabled)
		return nil
	})
}

func withServices(ctx context.Context, fn func(context.Context, *server.Services) error) error {
	cfg, log := loadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbConn.Close()

	svcs, err := server.NewServices(cfg, dbConn, nil, nil, log)
	if err != nil {
		return err
	}
	return fn(ctx, svcs)
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd, adminShowCmd, adminDisableCmd, adminEnableCmd)

	adminCmd.PersistentFlags().StringVar(&adminUsername, "username", "", "account username")
	_ = adminCmd.MarkPersistentFlagRequired("username")

	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "account email")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "account password")
	_ = adminCreateCmd.MarkFlagRequired("email")
}
