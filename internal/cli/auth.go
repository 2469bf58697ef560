package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect.

If password and totp_secret are configured in credentials.toml, the full
login runs without a browser. Otherwise the command prints the Kite
login URL; finish with 'igot login --token=<request_token>' or let the
running server's /kite/callback capture it.`,
		Example: `  igot login
  igot login --token=abc123   # Complete login with a request token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if app.Broker == nil {
				output.Error("Broker not configured. Please check your credentials.toml")
				return fmt.Errorf("broker not configured")
			}

			if app.Broker.IsAuthenticated() {
				output.Success("✓ Already logged in")
				return nil
			}

			token, _ := cmd.Flags().GetString("token")
			if token != "" {
				if err := app.Broker.CompleteLogin(ctx, token); err != nil {
					output.Error("Login failed: %v", err)
					return err
				}
				output.Success("✓ Login successful!")
				return nil
			}

			password := app.Config.Credentials.Kite.Password
			totpSecret := app.Config.Credentials.Kite.TOTPSecret
			if password != "" && totpSecret != "" {
				output.Info("Auto-login credentials found, attempting auto-login...")
				if err := app.Broker.AutoLogin(ctx, password, totpSecret); err != nil {
					output.Warning("Auto-login failed: %v", err)
				} else {
					output.Success("✓ Login successful!")
					return nil
				}
			}

			output.Info("Visit the login URL and authorize the app:")
			output.Println("  " + app.Broker.GetLoginURL())
			output.Println()
			output.Info("Then finish with: igot login --token=<request_token>")
			return nil
		},
	}

	cmd.Flags().String("token", "", "request token from the Kite redirect")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the Kite session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				return fmt.Errorf("broker not configured")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := app.Broker.Logout(ctx); err != nil {
				output.Error("Logout failed: %v", err)
				return err
			}
			output.Success("✓ Logged out")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				output.Warning("Broker not configured")
				return nil
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"authenticated": app.Broker.IsAuthenticated(),
				})
			}

			if app.Broker.IsAuthenticated() {
				output.Success("✓ Authenticated")
			} else {
				output.Warning("Not authenticated. Run 'igot login'")
			}
			return nil
		},
	}
}
