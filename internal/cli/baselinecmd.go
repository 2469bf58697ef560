package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"igot-scanner/internal/baseline"
	apperrors "igot-scanner/internal/errors"
	"igot-scanner/pkg/utils"
)

// addBaselineCommands adds the baseline capture and inspection commands.
func addBaselineCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage the session-open put OI baseline",
	}
	cmd.AddCommand(newBaselineRunCmd(app))
	cmd.AddCommand(newBaselineShowCmd(app))
	rootCmd.AddCommand(cmd)
}

func newBaselineRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one baseline capture pass now",
		Long: `Capture session-open put OI for the configured symbols immediately,
without waiting for the 09:15 schedule. Instruments already captured
today keep their first value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				return fmt.Errorf("broker not configured")
			}
			if app.Keeper == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			now := time.Now().In(utils.IndiaLocation)
			if !utils.IsMarketHours(now) {
				return fmt.Errorf("baseline capture needs live OI: %w", apperrors.ErrMarketClosed)
			}
			if err := app.Keeper.LoadDay(ctx, utils.TradingDayKey(now)); err != nil {
				return fmt.Errorf("loading persisted baseline: %w", err)
			}

			scheduler := baseline.NewScheduler(baseline.SchedulerConfig{
				Keeper:   app.Keeper,
				Market:   app.Broker,
				Resolver: app.Broker,
				Symbols:  app.Config.Scanner.Symbols,
				Radius:   app.Config.Scanner.WindowRadius,
				RiskFree: app.Config.Scanner.RiskFreeRate,
				DivYield: app.Config.Scanner.DividendYield,
				Logger:   app.Logger,
			})

			satisfied, err := scheduler.RunOnce(ctx)
			if err != nil {
				output.Error("Capture failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"trading_day": app.Keeper.Day(),
					"instruments": app.Keeper.Len(),
					"satisfied":   satisfied,
				})
			}

			if satisfied {
				output.Success("✓ Baseline captured: %d instruments", app.Keeper.Len())
			} else {
				output.Warning("Partial baseline: %d instruments, rerun once the feed settles", app.Keeper.Len())
			}
			return nil
		},
	}
}

func newBaselineShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show today's captured baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Keeper == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			day := utils.TradingDayKey(time.Now().In(utils.IndiaLocation))
			if err := app.Keeper.LoadDay(ctx, day); err != nil {
				return fmt.Errorf("loading baseline: %w", err)
			}

			entries := app.Keeper.Snapshot()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"trading_day": day,
					"entries":     entries,
				})
			}

			color.Cyan("📋 Baseline for %s", day)
			if len(entries) == 0 {
				output.Warning("No instruments captured yet")
				return nil
			}

			instruments := make([]string, 0, len(entries))
			for ts := range entries {
				instruments = append(instruments, ts)
			}
			sort.Strings(instruments)
			for _, ts := range instruments {
				output.Printf("  %-28s %d\n", ts, entries[ts])
			}
			return nil
		},
	}
}
