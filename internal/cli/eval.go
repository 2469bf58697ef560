package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	apperrors "igot-scanner/internal/errors"
	"igot-scanner/internal/models"
	"igot-scanner/pkg/utils"
)

// addEvalCommand adds the one-shot evaluation command.
func addEvalCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "eval <symbol>",
		Short: "Evaluate one symbol's option chain now",
		Long: `Run the full decision pipeline for a symbol as if an alert had just
arrived: strike window selection, premium deltas, volume confirmation,
put OI buildup, IV skew and the trend verdict.`,
		Example: `  igot eval NIFTY
  igot eval BANKNIFTY --move "CE +4.2"`,
		Args: cobra.ExactArgs(1),
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
			if err := app.Keeper.LoadDay(ctx, utils.TradingDayKey(now)); err != nil {
				app.Logger.Warn().Err(err).Msg("Baseline unavailable, OI deltas degrade to live totals")
			}

			move, _ := cmd.Flags().GetString("move")
			event := models.AlertEvent{
				Symbol: strings.ToUpper(args[0]),
				Move:   move,
				At:     now,
			}

			bundle, verdict, err := app.newAggregator().Evaluate(ctx, event)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotAuthenticated) {
					output.Warning("No Kite session. Run 'igot login' first.")
				}
				output.Error("Evaluation failed: %v", err)
				return err
			}

			record := &models.AlertRecord{
				Symbol:       bundle.Symbol,
				Time:         event.At,
				Move:         event.Move,
				LTP:          bundle.Spot,
				DeltaCE:      bundle.DeltaCE,
				DeltaPE:      bundle.DeltaPE,
				Skew:         bundle.Skew,
				DeltaOIPut:   bundle.DeltaOIPut,
				CallVolRatio: bundle.CallVolRatio,
				IVDeltaCE:    bundle.IVDeltaCE,
				IVDeltaPE:    bundle.IVDeltaPE,
				IVFlag:       bundle.IVFlag,
				Trend:        string(verdict.Trend),
				Flags:        verdict.FlagString(),
			}
			if app.Store != nil {
				if err := app.Store.SaveAlert(ctx, record); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to persist evaluation")
				}
			}

			if output.IsJSON() {
				return output.JSON(record)
			}

			printBundle(bundle, verdict)
			return nil
		},
	}

	cmd.Flags().String("move", "", "free-form move description recorded with the alert")
	rootCmd.AddCommand(cmd)
}

func printBundle(bundle *models.SignalBundle, verdict models.Verdict) {
	color.Cyan("📊 %s @ %.2f", bundle.Symbol, bundle.Spot)

	if bundle.Degenerate {
		color.Yellow("⚠ No resolvable option chain, neutral verdict")
		fmt.Printf("Trend: %s | Flags: %s\n", verdict.Trend, verdict.FlagString())
		return
	}

	fmt.Printf("ATM strike     %.0f\n", bundle.Window.ATM)
	fmt.Printf("ΔCE / ΔPE      %+.2f / %+.2f\n", bundle.DeltaCE, bundle.DeltaPE)
	fmt.Printf("Skew           %.2f (jump %.1fσ)\n", bundle.Skew, bundle.SkewJump)
	fmt.Printf("ΔOI put        %+d\n", bundle.DeltaOIPut)
	fmt.Printf("Call volume    %.1fx\n", bundle.CallVolRatio)
	fmt.Printf("IVΔ CE / PE    %+.2f / %+.2f\n", bundle.IVDeltaCE, bundle.IVDeltaPE)
	if bundle.IVFlag != "" {
		color.Yellow("⚠ %s", bundle.IVFlag)
	}

	if len(bundle.Confirmations) > 0 {
		fmt.Println()
		color.Cyan("Volume confirmation")
		for _, lc := range bundle.Confirmations {
			tag := string(lc.Tag)
			if lc.Tag == models.Confirmed {
				tag = color.GreenString(tag)
			}
			fmt.Printf("  %.0f %s  %s\n", lc.Strike, lc.Kind, tag)
		}
	}

	fmt.Println()
	switch verdict.Trend {
	case models.TrendConfirmedUp:
		color.Green("Trend: %s", verdict.Trend)
	case models.TrendConfirmedDown, models.TrendFakeUp, models.TrendFakeDown:
		color.Red("Trend: %s", verdict.Trend)
	default:
		color.Yellow("Trend: %s", verdict.Trend)
	}

	if len(verdict.Flags) > 0 {
		color.Red("Flags: %s", verdict.FlagString())
	} else {
		color.Green("Flags: OK")
	}
}
