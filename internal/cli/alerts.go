package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"igot-scanner/internal/models"
)

// addAlertsCommand adds the evaluated-alert listing and export commands.
func addAlertsCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent evaluated alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			limit, _ := cmd.Flags().GetInt("limit")
			outFile, _ := cmd.Flags().GetString("export")
			symbol, _ := cmd.Flags().GetString("symbol")
			days, _ := cmd.Flags().GetInt("days")
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			var alerts []models.AlertRecord
			var err error
			if symbol != "" {
				now := time.Now()
				alerts, err = app.Store.AlertsForSymbol(ctx, strings.ToUpper(symbol), now.AddDate(0, 0, -days), now)
			} else {
				alerts, err = app.Store.RecentAlerts(ctx, limit)
			}
			if err != nil {
				output.Error("Failed to load alerts: %v", err)
				return err
			}

			if outFile != "" {
				if err := exportAlertsCSV(outFile, alerts); err != nil {
					output.Error("Failed to export: %v", err)
					return err
				}
				output.Success("✓ Exported %d alerts to %s", len(alerts), outFile)
				return nil
			}

			if output.IsJSON() {
				return output.JSON(alerts)
			}

			if len(alerts) == 0 {
				output.Warning("No alerts recorded yet")
				return nil
			}

			layout := "02-Jan 15:04"
			if app.Config.UI.DateFormat != "" && app.Config.UI.TimeFormat != "" {
				layout = app.Config.UI.DateFormat + " " + app.Config.UI.TimeFormat
			}

			color.Cyan("🔔 Recent alerts")
			for _, a := range alerts {
				trend := a.Trend
				switch trend {
				case "CONFIRMED_UP":
					trend = output.Green(trend)
				case "CONFIRMED_DOWN", "FAKE_UP", "FAKE_DOWN":
					trend = output.Red(trend)
				default:
					trend = output.Yellow(trend)
				}

				flags := a.Flags
				if flags != "OK" {
					flags = output.Red(flags)
				}

				output.Printf("%s  %-10s %-14s dce=%+.2f dpe=%+.2f skew=%.2f doi=%+d %s\n",
					a.Time.Format(layout), a.Symbol, trend,
					a.DeltaCE, a.DeltaPE, a.Skew, a.DeltaOIPut, flags)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "maximum number of alerts to show")
	cmd.Flags().String("export", "", "write alerts to a CSV file instead of printing")
	cmd.Flags().String("symbol", "", "show one symbol's alerts instead of the newest overall")
	cmd.Flags().Int("days", 7, "lookback window for --symbol, in days")
	rootCmd.AddCommand(cmd)
	rootCmd.AddCommand(newResultCommand(app))
}

// newResultCommand records how an alert played out, for reviewing the
// classifier against what the market actually did.
func newResultCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "result <alert-id> <call-result> <put-result>",
		Short: "Record the eventual outcome of an evaluated alert",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := app.Store.UpdateAlertResults(ctx, id, args[1], args[2]); err != nil {
				output.Error("Failed to record result: %v", err)
				return err
			}
			output.Success("✓ Recorded result for alert %d", id)
			return nil
		},
	}
}

func exportAlertsCSV(path string, alerts []models.AlertRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"time", "symbol", "move", "ltp", "delta_ce", "delta_pe", "skew", "delta_oi_put", "call_vol_ratio", "ivd_ce", "ivd_pe", "iv_flag", "trend", "flags"})

	for _, a := range alerts {
		writer.Write([]string{
			a.Time.Format(time.RFC3339),
			a.Symbol,
			a.Move,
			fmt.Sprintf("%.2f", a.LTP),
			fmt.Sprintf("%.2f", a.DeltaCE),
			fmt.Sprintf("%.2f", a.DeltaPE),
			fmt.Sprintf("%.2f", a.Skew),
			fmt.Sprintf("%d", a.DeltaOIPut),
			fmt.Sprintf("%.2f", a.CallVolRatio),
			fmt.Sprintf("%.2f", a.IVDeltaCE),
			fmt.Sprintf("%.2f", a.IVDeltaPE),
			a.IVFlag,
			a.Trend,
			a.Flags,
		})
	}

	return writer.Error()
}
