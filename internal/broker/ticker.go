package broker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"igot-scanner/internal/models"
	"igot-scanner/pkg/utils"
)

// indexTokens maps watched index symbols to their NSE instrument
// tokens for WebSocket subscription.
var indexTokens = map[string]uint32{
	"NIFTY":      256265,
	"BANKNIFTY":  260105,
	"FINNIFTY":   257801,
	"MIDCPNIFTY": 288009,
}

// MoveWatcher streams index ticks and emits an AlertEvent when the
// intraday move crosses the configured threshold. It is the internal
// alert source; the webhook is the external one.
type MoveWatcher struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string

	movePercent float64
	cooldown    time.Duration
	onAlert     func(models.AlertEvent)
	logger      zerolog.Logger

	tokenSymbols map[uint32]string
	lastFired    map[uint32]time.Time
	connected    bool

	mu sync.Mutex
}

// MoveWatcherConfig holds configuration for the watcher.
type MoveWatcherConfig struct {
	APIKey      string
	AccessToken string
	Symbols     []string
	MovePercent float64
	// Cooldown suppresses repeat alerts per symbol. Defaults to 5m.
	Cooldown time.Duration
	OnAlert  func(models.AlertEvent)
	Logger   zerolog.Logger
}

// NewMoveWatcher creates a disconnected watcher. Symbols without a
// known index token are skipped with a warning.
func NewMoveWatcher(cfg MoveWatcherConfig) *MoveWatcher {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = 5 * time.Minute
	}

	w := &MoveWatcher{
		apiKey:       cfg.APIKey,
		accessToken:  cfg.AccessToken,
		movePercent:  cfg.MovePercent,
		cooldown:     cooldown,
		onAlert:      cfg.OnAlert,
		logger:       cfg.Logger,
		tokenSymbols: make(map[uint32]string),
		lastFired:    make(map[uint32]time.Time),
	}

	for _, symbol := range cfg.Symbols {
		token, ok := indexTokens[symbol]
		if !ok {
			cfg.Logger.Warn().Str("symbol", symbol).Msg("No instrument token known, not watching")
			continue
		}
		w.tokenSymbols[token] = symbol
	}

	return w
}

// Start connects the WebSocket and subscribes to the watched tokens.
// The kiteticker client handles reconnection internally.
func (w *MoveWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.tokenSymbols) == 0 {
		return fmt.Errorf("no watchable symbols")
	}
	if w.connected {
		return nil
	}

	w.ticker = kiteticker.New(w.apiKey, w.accessToken)

	w.ticker.OnConnect(func() {
		w.mu.Lock()
		w.connected = true
		tokens := make([]uint32, 0, len(w.tokenSymbols))
		for token := range w.tokenSymbols {
			tokens = append(tokens, token)
		}
		w.mu.Unlock()

		if err := w.ticker.Subscribe(tokens); err != nil {
			w.logger.Error().Err(err).Msg("Tick subscription failed")
			return
		}
		// Quote mode carries OHLC, enough to measure the intraday move.
		if err := w.ticker.SetMode(kiteticker.ModeQuote, tokens); err != nil {
			w.logger.Error().Err(err).Msg("Tick mode change failed")
			return
		}
		w.logger.Info().Int("tokens", len(tokens)).Msg("Move watcher connected")
	})

	w.ticker.OnError(func(err error) {
		w.logger.Warn().Err(err).Msg("Ticker error")
	})

	w.ticker.OnClose(func(code int, reason string) {
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
		w.logger.Warn().Int("code", code).Str("reason", reason).Msg("Ticker connection closed")
	})

	w.ticker.OnTick(w.handleTick)

	go w.ticker.Serve()
	return nil
}

// Stop closes the WebSocket connection.
func (w *MoveWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker != nil {
		w.ticker.Close()
		w.connected = false
	}
}

func (w *MoveWatcher) handleTick(tick kitemodels.Tick) {
	w.mu.Lock()
	symbol, ok := w.tokenSymbols[tick.InstrumentToken]
	w.mu.Unlock()
	if !ok {
		return
	}

	move, fired := w.evaluateTick(tick.InstrumentToken, tick.OHLC.Open, tick.LastPrice)
	if !fired {
		return
	}

	event := models.AlertEvent{
		Symbol: symbol,
		Move:   fmt.Sprintf("%+.2f%% intraday", move),
		At:     time.Now().In(utils.IndiaLocation),
	}
	w.logger.Info().Str("symbol", symbol).Str("move", event.Move).Msg("Price move alert")

	if w.onAlert != nil {
		go w.onAlert(event)
	}
}

// evaluateTick reports the intraday move and whether it should fire,
// honoring the per-symbol cooldown.
func (w *MoveWatcher) evaluateTick(token uint32, open, last float64) (float64, bool) {
	if open <= 0 || last <= 0 {
		return 0, false
	}

	move := 100 * (last - open) / open
	if math.Abs(move) < w.movePercent {
		return move, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if fired, ok := w.lastFired[token]; ok && now.Sub(fired) < w.cooldown {
		return move, false
	}
	w.lastFired[token] = now
	return move, true
}
