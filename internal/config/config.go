// Package config provides configuration management for the scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"igot-scanner/internal/signal"
)

// Config holds all application configuration.
type Config struct {
	Scanner       ScannerConfig      `mapstructure:"scanner"`
	Thresholds    signal.Thresholds  `mapstructure:"thresholds"`
	Server        ServerConfig       `mapstructure:"server"`
	Ticker        TickerConfig       `mapstructure:"ticker"`
	UI            UIConfig           `mapstructure:"ui"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// ScannerConfig holds the evaluation pipeline configuration.
type ScannerConfig struct {
	Symbols       []string `mapstructure:"symbols"`        // index symbols to track, e.g. NIFTY, BANKNIFTY
	WindowRadius  int      `mapstructure:"window_radius"`  // display window half-width in strikes
	RiskFreeRate  float64  `mapstructure:"risk_free_rate"` // annualized, for implied vol
	DividendYield float64  `mapstructure:"dividend_yield"`
	DBPath        string   `mapstructure:"db_path"` // empty means <config dir>/igot.db
}

// ServerConfig holds the webhook/API server configuration.
type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

// TickerConfig holds the price-move watcher configuration.
type TickerConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	MovePercent float64 `mapstructure:"move_percent"` // intraday move that triggers an evaluation
}

// UIConfig holds terminal output configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, flagged_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UserID     string `mapstructure:"user_id"`
	Password   string `mapstructure:"password"`    // For auto-login
	TOTPSecret string `mapstructure:"totp_secret"` // For auto-login with 2FA
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/igot-scanner"
	}
	return filepath.Join(home, ".config", "igot-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if cfg.Scanner.DBPath == "" {
		cfg.Scanner.DBPath = filepath.Join(configDir, "igot.db")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template and continue with
			// defaults.
			if err := createTemplateConfig(configDir); err != nil {
				return err
			}
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	th := signal.DefaultThresholds()

	v.SetDefault("scanner.symbols", []string{"NIFTY", "BANKNIFTY"})
	v.SetDefault("scanner.window_radius", signal.DefaultWindowRadius)
	v.SetDefault("scanner.risk_free_rate", 0.07)
	v.SetDefault("scanner.dividend_yield", 0.0)

	v.SetDefault("thresholds.ce_big", th.CEBig)
	v.SetDefault("thresholds.pe_flat", th.PEFlat)
	v.SetDefault("thresholds.pe_mult", th.PEMult)
	v.SetDefault("thresholds.oi_rise", th.OIRise)
	v.SetDefault("thresholds.skew_sigma", th.SkewSigma)
	v.SetDefault("thresholds.call_vol_req", th.CallVolReq)
	v.SetDefault("thresholds.ivd_jump", th.IVDJump)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10)

	v.SetDefault("ticker.enabled", false)
	v.SetDefault("ticker.move_percent", 0.5)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.level", "all")
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_USER_ID"); v != "" {
		cfg.Credentials.Kite.UserID = v
	}

	// Telegram credentials
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Notifications.Telegram.ChatID = id
		}
	}

	// Server address
	if v := os.Getenv("IGOT_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Scanner.Symbols) == 0 {
		return fmt.Errorf("scanner.symbols must not be empty")
	}
	if c.Scanner.WindowRadius <= 0 {
		return fmt.Errorf("scanner.window_radius must be positive")
	}
	if c.Scanner.RiskFreeRate < 0 || c.Scanner.RiskFreeRate > 1 {
		return fmt.Errorf("scanner.risk_free_rate must be between 0 and 1")
	}

	if c.Thresholds.CEBig <= 0 {
		return fmt.Errorf("thresholds.ce_big must be positive")
	}
	if c.Thresholds.PEMult <= 0 {
		return fmt.Errorf("thresholds.pe_mult must be positive")
	}
	if c.Thresholds.SkewSigma <= 0 {
		return fmt.Errorf("thresholds.skew_sigma must be positive")
	}
	if c.Thresholds.CallVolReq <= 0 {
		return fmt.Errorf("thresholds.call_vol_req must be positive")
	}
	if c.Thresholds.IVDJump <= 0 {
		return fmt.Errorf("thresholds.ivd_jump must be positive")
	}

	if c.Ticker.MovePercent < 0 {
		return fmt.Errorf("ticker.move_percent must be non-negative")
	}

	if c.Notifications.Level != "" && c.Notifications.Level != "all" && c.Notifications.Level != "flagged_only" {
		return fmt.Errorf("invalid notification level: %s (must be 'all' or 'flagged_only')", c.Notifications.Level)
	}

	return nil
}
