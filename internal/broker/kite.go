package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "igot-scanner/internal/errors"
	"igot-scanner/internal/logging"
	"igot-scanner/internal/models"
	"igot-scanner/internal/resilience"
	"igot-scanner/pkg/utils"
)

// KiteBroker implements the Broker interface on Zerodha Kite Connect.
type KiteBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool
	breaker       *resilience.CircuitBreaker
	logger        zerolog.Logger

	// NFO instrument dump, refreshed once per trading day.
	instruments   []models.Instrument
	instrumentsAt time.Time

	mu sync.RWMutex
}

// KiteConfig holds configuration for the Kite broker.
type KiteConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
	// Timeout bounds every HTTP call so one unresponsive alert cannot
	// stall the service. Defaults to 4s.
	Timeout time.Duration
	// Logger receives api_call debug events; nil disables them.
	Logger *zerolog.Logger
}

// NewKiteBroker creates a broker and loads any saved session from disk.
func NewKiteBroker(cfg KiteConfig) *KiteBroker {
	client := kiteconnect.New(cfg.APIKey)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 4 * time.Second
	}
	client.SetHTTPClient(&http.Client{Timeout: timeout})

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "igot-scanner", "session.json")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	kb := &KiteBroker{
		client:    client,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userID:    cfg.UserID,
		tokenPath: tokenPath,
		breaker:   resilience.NewCircuitBreaker("kite", resilience.DefaultCircuitBreakerConfig()),
		logger:    logger,
	}

	_ = kb.loadSession()

	return kb
}

type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login verifies the persisted session or reports the login URL the
// user must visit to obtain a request token.
func (k *KiteBroker) Login(ctx context.Context) error {
	if err := k.loadSession(); err == nil && k.IsAuthenticated() {
		probe := k.breaker.Execute(ctx, func() error {
			_, err := k.client.GetUserProfile()
			return err
		})
		if probe == nil {
			return nil
		}
	}

	loginURL := k.client.GetLoginURL()
	return fmt.Errorf("authentication required: visit %s and complete login, then finish with the request token", loginURL)
}

// CompleteLogin exchanges a request token for a session and persists it.
func (k *KiteBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := k.client.GenerateSession(requestToken, k.apiSecret)
	if err != nil {
		return fmt.Errorf("generating session: %w", err)
	}

	k.mu.Lock()
	k.accessToken = session.AccessToken
	k.authenticated = true
	k.client.SetAccessToken(session.AccessToken)
	k.mu.Unlock()

	if err := k.saveSession(session.AccessToken); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

// Logout invalidates the session and removes the persisted token.
func (k *KiteBroker) Logout(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.authenticated {
		_, _ = k.client.InvalidateAccessToken()
	}
	k.accessToken = ""
	k.authenticated = false

	if err := os.Remove(k.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a live session is loaded.
func (k *KiteBroker) IsAuthenticated() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.authenticated
}

// GetLoginURL returns the Kite Connect login URL for the OAuth flow.
func (k *KiteBroker) GetLoginURL() string {
	return k.client.GetLoginURL()
}

// AccessToken returns the current access token, empty when logged out.
func (k *KiteBroker) AccessToken() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.accessToken
}

func (k *KiteBroker) loadSession() error {
	data, err := os.ReadFile(k.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	if time.Now().After(session.ExpiresAt) {
		return apperrors.ErrSessionExpired
	}

	k.mu.Lock()
	k.accessToken = session.AccessToken
	k.authenticated = true
	k.client.SetAccessToken(session.AccessToken)
	k.mu.Unlock()

	return nil
}

func (k *KiteBroker) saveSession(accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(k.tokenPath), 0700); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day.
	now := time.Now().In(utils.IndiaLocation)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	data, err := json.Marshal(sessionData{
		AccessToken: accessToken,
		UserID:      k.userID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return err
	}

	return os.WriteFile(k.tokenPath, data, 0600)
}

// indexQuoteSymbol maps watched symbols to their NSE quote identifiers.
// Indices trade under display names, equities under their own symbol.
var indexQuoteSymbol = map[string]string{
	"NIFTY":      "NSE:NIFTY 50",
	"BANKNIFTY":  "NSE:NIFTY BANK",
	"FINNIFTY":   "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NSE:NIFTY MID SELECT",
}

func spotQuoteID(symbol string) string {
	if id, ok := indexQuoteSymbol[strings.ToUpper(symbol)]; ok {
		return id
	}
	return "NSE:" + symbol
}

// Spot returns the last traded price of the underlying.
func (k *KiteBroker) Spot(ctx context.Context, symbol string) (float64, error) {
	if !k.IsAuthenticated() {
		return 0, apperrors.ErrNotAuthenticated
	}

	id := spotQuoteID(symbol)
	start := time.Now()
	quotes, err := resilience.ExecuteWithResult(k.breaker, ctx, func() (kiteconnect.Quote, error) {
		return k.client.GetQuote(id)
	})
	logging.LogAPICall(k.logger, "GET", "quote/"+id, time.Since(start), err)
	if err != nil {
		return 0, apperrors.NewAPIError("quote", symbol, err)
	}
	q, ok := quotes[id]
	if !ok {
		return 0, fmt.Errorf("no spot quote for %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}
	return q.LastPrice, nil
}

// Quote returns the live quote for one NFO instrument.
func (k *KiteBroker) Quote(ctx context.Context, tradingsymbol string) (*models.Quote, error) {
	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	id := "NFO:" + tradingsymbol
	start := time.Now()
	quotes, err := resilience.ExecuteWithResult(k.breaker, ctx, func() (kiteconnect.Quote, error) {
		return k.client.GetQuote(id)
	})
	logging.LogAPICall(k.logger, "GET", "quote/"+id, time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewAPIError("quote", tradingsymbol, err)
	}
	q, ok := quotes[id]
	if !ok {
		return nil, fmt.Errorf("no quote for %s: %w", tradingsymbol, apperrors.ErrSymbolNotFound)
	}

	return &models.Quote{
		Symbol:       tradingsymbol,
		LastPrice:    q.LastPrice,
		OpenPrice:    q.OHLC.Open,
		OpenInterest: int64(q.OI),
		Volume:       int64(q.Volume),
		Timestamp:    q.LastTradeTime.Time,
	}, nil
}

// Bars returns 5-minute candles for one NFO instrument since the given
// instant.
func (k *KiteBroker) Bars(ctx context.Context, tradingsymbol string, since time.Time) ([]models.Candle, error) {
	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	inst, ok, err := k.instrumentBySymbol(ctx, tradingsymbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("unknown instrument %s: %w", tradingsymbol, apperrors.ErrSymbolNotFound)
	}

	start := time.Now()
	data, err := resilience.ExecuteWithResult(k.breaker, ctx, func() ([]kiteconnect.HistoricalData, error) {
		return k.client.GetHistoricalData(int(inst.Token), "5minute", since, time.Now(), false, false)
	})
	logging.LogAPICall(k.logger, "GET", "historical/"+tradingsymbol, time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewAPIError("historical", tradingsymbol, err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}
	return candles, nil
}

// ResolveExpiry returns the nearest future option expiry listed for the
// symbol.
func (k *KiteBroker) ResolveExpiry(ctx context.Context, symbol string) (time.Time, error) {
	instruments, err := k.nfoInstruments(ctx)
	if err != nil {
		return time.Time{}, err
	}

	name := strings.ToUpper(symbol)
	today := utils.TradingDay(time.Now())

	var nearest time.Time
	for _, inst := range instruments {
		if inst.Name != name || !isOptionType(inst.InstrType) {
			continue
		}
		if inst.Expiry.Before(today) {
			continue
		}
		if nearest.IsZero() || inst.Expiry.Before(nearest) {
			nearest = inst.Expiry
		}
	}

	if nearest.IsZero() {
		return time.Time{}, fmt.Errorf("no option expiry listed for %s", symbol)
	}
	return nearest, nil
}

// Strikes returns the distinct strikes listed for the expiry, ascending.
func (k *KiteBroker) Strikes(ctx context.Context, symbol string, expiry time.Time) ([]float64, error) {
	instruments, err := k.nfoInstruments(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.ToUpper(symbol)
	seen := make(map[float64]struct{})
	var strikes []float64
	for _, inst := range instruments {
		if inst.Name != name || !isOptionType(inst.InstrType) || !sameDay(inst.Expiry, expiry) {
			continue
		}
		if _, dup := seen[inst.Strike]; dup {
			continue
		}
		seen[inst.Strike] = struct{}{}
		strikes = append(strikes, inst.Strike)
	}

	sort.Float64s(strikes)
	return strikes, nil
}

// OptionSymbol returns the NFO tradingsymbol for a strike and kind.
// ok=false means no such instrument is listed, which is an expected
// state for sparse chains.
func (k *KiteBroker) OptionSymbol(ctx context.Context, symbol string, expiry time.Time, strike float64, kind models.OptionKind) (string, bool, error) {
	instruments, err := k.nfoInstruments(ctx)
	if err != nil {
		return "", false, err
	}

	name := strings.ToUpper(symbol)
	for _, inst := range instruments {
		if inst.Name != name || inst.InstrType != string(kind) || !sameDay(inst.Expiry, expiry) {
			continue
		}
		if math.Abs(inst.Strike-strike) < 1e-6 {
			return inst.Symbol, true, nil
		}
	}
	return "", false, nil
}

// nfoInstruments returns the cached NFO instrument dump, fetching it
// when absent or stale (older than the current trading day).
func (k *KiteBroker) nfoInstruments(ctx context.Context) ([]models.Instrument, error) {
	k.mu.RLock()
	cached := k.instruments
	fetchedAt := k.instrumentsAt
	k.mu.RUnlock()

	today := utils.TradingDay(time.Now())
	if cached != nil && !fetchedAt.Before(today) {
		return cached, nil
	}

	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	start := time.Now()
	dump, err := resilience.ExecuteWithResult(k.breaker, ctx, func() (kiteconnect.Instruments, error) {
		return k.client.GetInstrumentsByExchange("NFO")
	})
	logging.LogAPICall(k.logger, "GET", "instruments/NFO", time.Since(start), err)
	if err != nil {
		// A stale dump still resolves symbols; prefer it over failing.
		if cached != nil {
			return cached, nil
		}
		return nil, apperrors.NewAPIError("instruments", "", err)
	}

	instruments := make([]models.Instrument, len(dump))
	for i, inst := range dump {
		instruments[i] = models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.Exchange(inst.Exchange),
			Segment:   inst.Segment,
			LotSize:   int(inst.LotSize),
			TickSize:  inst.TickSize,
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		}
	}

	k.mu.Lock()
	k.instruments = instruments
	k.instrumentsAt = time.Now()
	k.mu.Unlock()

	return instruments, nil
}

func (k *KiteBroker) instrumentBySymbol(ctx context.Context, tradingsymbol string) (models.Instrument, bool, error) {
	instruments, err := k.nfoInstruments(ctx)
	if err != nil {
		return models.Instrument{}, false, err
	}
	for _, inst := range instruments {
		if inst.Symbol == tradingsymbol {
			return inst, true, nil
		}
	}
	return models.Instrument{}, false, nil
}

func isOptionType(t string) bool {
	return t == string(models.KindCall) || t == string(models.KindPut)
}

func sameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

var _ Broker = (*KiteBroker)(nil)
