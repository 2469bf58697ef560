// Package cli provides the command-line interface for the scanner.
package cli

import (
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"igot-scanner/internal/baseline"
	"igot-scanner/internal/broker"
	"igot-scanner/internal/config"
	"igot-scanner/internal/logging"
	"igot-scanner/internal/signal"
	"igot-scanner/internal/skew"
	"igot-scanner/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Broker  *broker.KiteBroker
	Store   *store.SQLiteStore
	Keeper  *baseline.Keeper
	Tracker *skew.Tracker
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Tracker: skew.NewTracker(),
	}

	if !cfg.UI.ColorEnabled {
		color.NoColor = true
	}

	// Initialize broker if credentials are available
	if cfg.Credentials.Kite.APIKey != "" {
		app.Broker = broker.NewKiteBroker(broker.KiteConfig{
			APIKey:    cfg.Credentials.Kite.APIKey,
			APISecret: cfg.Credentials.Kite.APISecret,
			UserID:    cfg.Credentials.Kite.UserID,
			Logger:    &logger,
		})
		logger.Debug().Msg("Kite broker initialized")
	}

	// Initialize SQLite store and the baseline keeper on top of it
	dataStore, err := store.NewSQLiteStore(cfg.Scanner.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		app.Keeper = baseline.NewKeeper(dataStore, logger)
		logger.Debug().Str("path", cfg.Scanner.DBPath).Msg("SQLite store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "igot",
		Short: "iGOT Scanner - option chain alert decision engine",
		Long: `iGOT Scanner evaluates index option chains on demand.

For every inbound alert it aggregates premium moves, volume confirmation,
put OI buildup and the call/put IV skew into a single trend verdict with
warning flags. Alerts arrive over the webhook server or from the built-in
price-move watcher.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/igot-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addAuthCommands(rootCmd, app)
	addEvalCommand(rootCmd, app)
	addBaselineCommands(rootCmd, app)
	addAlertsCommand(rootCmd, app)
	addConfigCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addVersionCommand(rootCmd)

	return rootCmd
}

// newAggregator wires the evaluation pipeline from the app state.
func (app *App) newAggregator() *signal.Aggregator {
	return signal.NewAggregator(signal.AggregatorConfig{
		Market:     app.Broker,
		Resolver:   app.Broker,
		Baseline:   app.Keeper,
		Tracker:    app.Tracker,
		Thresholds: app.Config.Thresholds,
		Radius:     app.Config.Scanner.WindowRadius,
		RiskFree:   app.Config.Scanner.RiskFreeRate,
		DivYield:   app.Config.Scanner.DividendYield,
		Logger:     app.Logger,
	})
}

func addVersionCommand(rootCmd *cobra.Command) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("igot %s\n", Version)
		},
	})
}
