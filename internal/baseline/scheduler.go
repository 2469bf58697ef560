package baseline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"igot-scanner/internal/broker"
	"igot-scanner/internal/logging"
	"igot-scanner/internal/models"
	"igot-scanner/internal/pricing"
	"igot-scanner/internal/signal"
	"igot-scanner/pkg/utils"
)

const (
	// capturePoll is how often an unsatisfied capture retries.
	capturePoll = 20 * time.Second
	// captureWindow bounds the capture loop after session open. OI past
	// the first few minutes is no longer a session-open baseline.
	captureWindow = 4 * time.Minute
	// minPutLegs is the per-symbol bar for calling a capture complete.
	minPutLegs = 2
)

// Scheduler fires the baseline capture at 09:15 IST each trading day
// and retries until enough put legs are recorded or the capture window
// closes.
type Scheduler struct {
	keeper   *Keeper
	market   broker.MarketData
	resolver broker.Resolver
	symbols  []string
	radius   int
	riskFree float64
	divYield float64
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// SchedulerConfig holds the construction parameters. RiskFree and
// DivYield feed the open ATM IV capture and should match the
// aggregator's values so intraday IV deltas compare like with like.
type SchedulerConfig struct {
	Keeper   *Keeper
	Market   broker.MarketData
	Resolver broker.Resolver
	Symbols  []string
	Radius   int
	RiskFree float64
	DivYield float64
	Logger   zerolog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	radius := cfg.Radius
	if radius <= 0 {
		radius = signal.DefaultWindowRadius
	}
	riskFree := cfg.RiskFree
	if riskFree == 0 {
		riskFree = 0.07
	}
	return &Scheduler{
		keeper:   cfg.Keeper,
		market:   cfg.Market,
		resolver: cfg.Resolver,
		symbols:  cfg.Symbols,
		radius:   radius,
		riskFree: riskFree,
		divYield: cfg.DivYield,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start loads today's persisted baseline and begins the scheduling
// loop. If started inside an open capture window it runs the capture
// immediately instead of waiting for tomorrow.
func (s *Scheduler) Start() {
	now := time.Now().In(utils.IndiaLocation)
	if err := s.keeper.LoadDay(s.ctx, utils.TradingDayKey(now)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load persisted baseline")
	}
	go s.loop()
}

// Stop terminates the scheduling loop.
func (s *Scheduler) Stop() {
	s.cancel()
}

func (s *Scheduler) loop() {
	now := time.Now().In(utils.IndiaLocation)
	open := utils.SessionOpen(now)
	if now.After(open) && now.Before(open.Add(captureWindow)) {
		s.captureLoop(open)
	}

	for {
		next := utils.NextSessionOpen(time.Now().In(utils.IndiaLocation))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.captureLoop(next)
	}
}

// captureLoop retries the capture every capturePoll until satisfied or
// the window past session open closes. A partial baseline at the
// deadline is kept; evaluations treat missing legs as zero.
func (s *Scheduler) captureLoop(open time.Time) {
	deadline := open.Add(captureWindow)
	ticker := time.NewTicker(capturePoll)
	defer ticker.Stop()

	for {
		satisfied, err := s.RunOnce(s.ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Baseline capture pass failed")
		}
		if satisfied {
			logging.LogBaselineCapture(s.logger, s.keeper.Day(), s.keeper.Len(), true)
			return
		}
		if time.Now().In(utils.IndiaLocation).After(deadline) {
			logging.LogBaselineCapture(s.logger, s.keeper.Day(), s.keeper.Len(), false)
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single capture pass over every configured symbol.
// It reports whether each symbol now has at least minPutLegs entries.
// Per-leg failures are logged and skipped, never returned.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	day := utils.TradingDayKey(time.Now().In(utils.IndiaLocation))

	// A keeper still holding yesterday's entries would make every leg
	// look captured already; swap in the new day's (usually empty)
	// persisted baseline before the pass.
	if s.keeper.Day() != day {
		if err := s.keeper.LoadDay(ctx, day); err != nil {
			return false, err
		}
	}

	satisfied := true
	for _, symbol := range s.symbols {
		n, err := s.captureSymbol(ctx, day, symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Baseline capture failed for symbol")
			satisfied = false
			continue
		}
		if n < minPutLegs {
			satisfied = false
		}
	}
	return satisfied, nil
}

// captureSymbol records session-open OI for the put legs just below the
// money and returns how many legs the day's baseline now covers for the
// symbol.
func (s *Scheduler) captureSymbol(ctx context.Context, day, symbol string) (int, error) {
	log := logging.WithSymbol(s.logger, symbol)

	spot, err := s.market.Spot(ctx, symbol)
	if err != nil {
		return 0, err
	}
	expiry, err := s.resolver.ResolveExpiry(ctx, symbol)
	if err != nil {
		return 0, err
	}
	strikes, err := s.resolver.Strikes(ctx, symbol, expiry)
	if err != nil {
		return 0, err
	}

	window := signal.SelectWindow(spot, strikes, s.radius)
	s.captureOpenIV(ctx, day, symbol, spot, expiry, window.ATM, log)

	captured := 0
	for _, strike := range window.BaselineBelow {
		ts, ok, err := s.resolver.OptionSymbol(ctx, symbol, expiry, strike, models.KindPut)
		if err != nil || !ok {
			continue
		}
		if s.keeper.Has(ts) {
			captured++
			continue
		}

		q, err := s.market.Quote(ctx, ts)
		if err != nil {
			log.Debug().Err(err).Str("instrument", ts).Msg("Baseline quote unavailable")
			continue
		}
		// Zero OI right at open usually means the feed hasn't settled;
		// the next poll picks the leg up.
		if q.OpenInterest <= 0 {
			continue
		}

		if err := s.keeper.Record(ctx, day, ts, q.OpenInterest, time.Now().In(utils.IndiaLocation)); err != nil {
			continue
		}
		captured++
	}
	return captured, nil
}

// captureOpenIV records the symbol's ATM implied vol pair, the 09:15
// reference the intraday IV deltas are measured against. Best effort:
// the put OI capture proceeds whether or not both ATM legs price.
func (s *Scheduler) captureOpenIV(ctx context.Context, day, symbol string, spot float64, expiry time.Time, atm float64, log zerolog.Logger) {
	if s.keeper.HasOpenIV(symbol) {
		return
	}

	now := time.Now().In(utils.IndiaLocation)
	years := pricing.ExpiryYears(now, expiry)

	var iv models.OpenIV
	for _, kind := range []models.OptionKind{models.KindCall, models.KindPut} {
		ts, ok, err := s.resolver.OptionSymbol(ctx, symbol, expiry, atm, kind)
		if err != nil || !ok {
			return
		}
		q, err := s.market.Quote(ctx, ts)
		if err != nil || q.LastPrice <= 0 {
			log.Debug().Str("instrument", ts).Msg("Open IV quote unavailable")
			return
		}

		sign := pricing.SignCall
		if kind == models.KindPut {
			sign = pricing.SignPut
		}
		vol := pricing.ImpliedVol(q.LastPrice, spot, atm, years, s.riskFree, s.divYield, sign)
		if kind == models.KindCall {
			iv.CE = vol
		} else {
			iv.PE = vol
		}
	}

	_ = s.keeper.RecordOpenIV(ctx, day, symbol, iv, now)
}
