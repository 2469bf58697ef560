package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igot-scanner/internal/baseline"
	"igot-scanner/internal/broker"
	"igot-scanner/internal/logging"
	"igot-scanner/internal/models"
	"igot-scanner/internal/notify"
	"igot-scanner/internal/server"
)

// baselineKeepDays is how much baseline history survives the startup
// prune. A week covers any result review.
const baselineKeepDays = 7

// addServeCommand adds the long-running service command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, baseline scheduler and move watcher",
		Long: `Run the scanner as a service: the HTTP webhook accepts alerts, the
scheduler captures the put OI baseline at 09:15 IST, and the optional
move watcher turns large index moves into alerts. Shuts down cleanly
on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				return fmt.Errorf("broker not configured")
			}
			if app.Store == nil || app.Keeper == nil {
				return fmt.Errorf("store unavailable")
			}
			if !app.Broker.IsAuthenticated() {
				output.Warning("Not authenticated. Market data calls will fail until login; visit /kite/login or run 'igot login'")
			}

			notifier := notify.NewMultiNotifier(&app.Config.Notifications, logging.WithOperation(app.Logger, "notify"))
			aggregator := app.newAggregator()

			// Baseline rows from past sessions only clutter the db.
			pruneCtx, pruneCancel := context.WithTimeout(context.Background(), 15*time.Second)
			if n, err := app.Store.PruneBaseline(pruneCtx, baselineKeepDays); err != nil {
				app.Logger.Warn().Err(err).Msg("Baseline prune failed")
			} else if n > 0 {
				app.Logger.Info().Int64("rows", n).Msg("Pruned stale baseline rows")
			}
			pruneCancel()

			scheduler := baseline.NewScheduler(baseline.SchedulerConfig{
				Keeper:   app.Keeper,
				Market:   app.Broker,
				Resolver: app.Broker,
				Symbols:  app.Config.Scanner.Symbols,
				Radius:   app.Config.Scanner.WindowRadius,
				RiskFree: app.Config.Scanner.RiskFreeRate,
				DivYield: app.Config.Scanner.DividendYield,
				Logger:   logging.WithOperation(app.Logger, "baseline"),
			})
			scheduler.Start()
			defer scheduler.Stop()

			var watcher *broker.MoveWatcher
			if app.Config.Ticker.Enabled {
				watcher = broker.NewMoveWatcher(broker.MoveWatcherConfig{
					APIKey:      app.Config.Credentials.Kite.APIKey,
					AccessToken: app.Broker.AccessToken(),
					Symbols:     app.Config.Scanner.Symbols,
					MovePercent: app.Config.Ticker.MovePercent,
					Logger:      logging.WithOperation(app.Logger, "ticker"),
					OnAlert: func(event models.AlertEvent) {
						ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
						defer cancel()

						bundle, verdict, err := aggregator.Evaluate(ctx, event)
						if err != nil {
							app.Logger.Error().Err(err).Str("symbol", event.Symbol).Msg("Move alert evaluation failed")
							return
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
						if err := app.Store.SaveAlert(ctx, record); err != nil {
							app.Logger.Error().Err(err).Msg("Failed to persist move alert")
						}
						_ = notifier.SendVerdict(ctx, bundle, verdict)
					},
				})
				if err := watcher.Start(); err != nil {
					app.Logger.Warn().Err(err).Msg("Move watcher not started")
				} else {
					defer watcher.Stop()
				}
			}

			srv := server.New(server.Config{
				Server:     app.Config.Server,
				Aggregator: aggregator,
				Store:      app.Store,
				Notifier:   notifier,
				Broker:     app.Broker,
				Logger:     logging.WithOperation(app.Logger, "http"),
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			output.Success("✓ Scanner running on %s", app.Config.Server.ListenAddr)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				app.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
			}

			return srv.Shutdown(context.Background())
		},
	}

	rootCmd.AddCommand(cmd)
}
