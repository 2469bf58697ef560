package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# iGOT Scanner Configuration

[scanner]
# Index symbols to evaluate and baseline
symbols = ["NIFTY", "BANKNIFTY"]
# Display window half-width in strikes around ATM
window_radius = 2
# Annualized risk-free rate used for implied volatility
risk_free_rate = 0.07
# Annualized dividend yield
dividend_yield = 0.0
# SQLite database path (empty = <config dir>/igot.db)
db_path = ""

[thresholds]
# CE premium move treated as a big move (points)
ce_big = 3.0
# PE premium move treated as flat (points)
pe_flat = 1.0
# Required PE fall as a multiple of the CE rise (and vice versa)
pe_mult = 0.5
# Put OI buildup treated as notable (contracts)
oi_rise = 1000
# Skew jump in z-score units flagged as an IV pump
skew_sigma = 2.0
# Call volume surge required to confirm participation
call_vol_req = 1.5
# ATM CE IV change since open (vol points) labelled IV Pump / IV Crush
ivd_jump = 3.0

[server]
# Webhook/API listen address
listen_addr = ":8080"
# Graceful shutdown timeout in seconds
shutdown_timeout = 10

[ticker]
# Watch live ticks and evaluate on large intraday moves
enabled = false
# Intraday move (percent) that triggers an evaluation
move_percent = 0.5

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
# Time format
time_format = "15:04:05"

[notifications]
# Enable notifications
enabled = false
# Notification level: all, flagged_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = 0
`

const credentialsTemplate = `# iGOT Scanner Credentials
# Keep this file private: chmod 600 credentials.toml

[kite]
api_key = ""
api_secret = ""
user_id = ""
# Optional, only needed for TOTP auto-login
password = ""
totp_secret = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// Credentials are sensitive, restrict permissions
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
