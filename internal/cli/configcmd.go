package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"igot-scanner/internal/config"
)

// addConfigCommands adds the configuration inspection commands.
func addConfigCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			output.Info("Config file: %s", filepath.Join(config.DefaultConfigDir(), "config.toml"))
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}

func showConfig(output *Output, cfg *config.Config) {
	output.Printf("Scanner\n")
	output.Printf("  Symbols:        %v\n", cfg.Scanner.Symbols)
	output.Printf("  Window radius:  %d\n", cfg.Scanner.WindowRadius)
	output.Printf("  Risk-free rate: %.4f\n", cfg.Scanner.RiskFreeRate)
	output.Printf("  Dividend yield: %.4f\n", cfg.Scanner.DividendYield)
	output.Printf("  Database:       %s\n", cfg.Scanner.DBPath)
	output.Println()

	output.Printf("Thresholds\n")
	output.Printf("  CE big:         %.2f\n", cfg.Thresholds.CEBig)
	output.Printf("  PE flat:        %.2f\n", cfg.Thresholds.PEFlat)
	output.Printf("  PE mult:        %.2f\n", cfg.Thresholds.PEMult)
	output.Printf("  OI rise:        %d\n", cfg.Thresholds.OIRise)
	output.Printf("  Skew sigma:     %.2f\n", cfg.Thresholds.SkewSigma)
	output.Printf("  Call vol req:   %.2f\n", cfg.Thresholds.CallVolReq)
	output.Printf("  IVD jump:       %.2f\n", cfg.Thresholds.IVDJump)
	output.Println()

	output.Printf("Server\n")
	output.Printf("  Listen:         %s\n", cfg.Server.ListenAddr)
	output.Println()

	output.Printf("Notifications\n")
	output.Printf("  Enabled:        %t\n", cfg.Notifications.Enabled)
	output.Printf("  Level:          %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:        %t\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:       %t\n", cfg.Notifications.Telegram.Enabled)
	output.Println()

	output.Printf("Move watcher\n")
	output.Printf("  Enabled:        %t\n", cfg.Ticker.Enabled)
	output.Printf("  Move percent:   %.2f\n", cfg.Ticker.MovePercent)

	if cfg.Credentials.Kite.APIKey == "" {
		output.Warning("No Kite credentials configured")
	}
}
