package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"igot-scanner/internal/logging"
	"igot-scanner/internal/models"
	"igot-scanner/pkg/utils"
)

// alertPayload is the inbound webhook body. The timestamp is optional
// and accepted in epoch or ISO-8601 form.
type alertPayload struct {
	Symbol string `json:"symbol"`
	Move   string `json:"move"`
	Time   string `json:"time"`
}

// alertResponse is the evaluation result returned to the webhook
// caller.
type alertResponse struct {
	Symbol       string  `json:"symbol"`
	Spot         float64 `json:"spot"`
	DeltaCE      float64 `json:"dce"`
	DeltaPE      float64 `json:"dpe"`
	Skew         float64 `json:"skew"`
	SkewJump     float64 `json:"skew_jump"`
	DeltaOIPut   int64   `json:"doi_put"`
	CallVolRatio float64 `json:"call_vol_ratio"`
	IVDeltaCE    float64 `json:"ivd_ce"`
	IVDeltaPE    float64 `json:"ivd_pe"`
	IVFlag       string  `json:"iv_flag,omitempty"`
	Trend        string  `json:"trend"`
	Flags        string  `json:"flag"`
	Degenerate   bool    `json:"degenerate,omitempty"`
}

func (s *Server) handleAlert(c echo.Context) error {
	var payload alertPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if payload.Symbol == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "symbol is required"})
	}

	event := models.AlertEvent{
		Symbol: payload.Symbol,
		Move:   payload.Move,
		At:     models.ParseEventTime(payload.Time, time.Now().In(utils.IndiaLocation)),
	}

	ctx := c.Request().Context()
	bundle, verdict, err := s.aggregator.Evaluate(ctx, event)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", event.Symbol).Msg("Evaluation failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	logging.LogEvaluation(s.logger, bundle.Symbol, string(verdict.Trend), verdict.FlagString(), bundle.Skew, bundle.SkewJump)

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
	if err := s.store.SaveAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("symbol", event.Symbol).Msg("Failed to persist alert")
	}

	if s.notifier != nil {
		// Delivery happens off the request path; channel timeouts must
		// not slow the webhook response.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = s.notifier.SendVerdict(ctx, bundle, verdict)
		}()
	}

	return c.JSON(http.StatusOK, alertResponse{
		Symbol:       bundle.Symbol,
		Spot:         bundle.Spot,
		DeltaCE:      bundle.DeltaCE,
		DeltaPE:      bundle.DeltaPE,
		Skew:         bundle.Skew,
		SkewJump:     bundle.SkewJump,
		DeltaOIPut:   bundle.DeltaOIPut,
		CallVolRatio: bundle.CallVolRatio,
		IVDeltaCE:    bundle.IVDeltaCE,
		IVDeltaPE:    bundle.IVDeltaPE,
		IVFlag:       bundle.IVFlag,
		Trend:        string(verdict.Trend),
		Flags:        verdict.FlagString(),
		Degenerate:   bundle.Degenerate,
	})
}

func (s *Server) handleRecentAlerts(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
	}

	alerts, err := s.store.RecentAlerts(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load alerts")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storage failure"})
	}
	if alerts == nil {
		alerts = []models.AlertRecord{}
	}
	return c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := map[string]interface{}{
		"status":        "ok",
		"authenticated": s.broker != nil && s.broker.IsAuthenticated(),
		"market_open":   utils.IsMarketHours(time.Now().In(utils.IndiaLocation)),
	}
	return c.JSON(http.StatusOK, status)
}

// handleKiteLogin redirects the browser to the Kite Connect consent
// page. The callback registered with the app points back at
// /kite/callback.
func (s *Server) handleKiteLogin(c echo.Context) error {
	if s.broker == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "broker not configured"})
	}
	return c.Redirect(http.StatusFound, s.broker.GetLoginURL())
}

func (s *Server) handleKiteCallback(c echo.Context) error {
	if s.broker == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "broker not configured"})
	}

	requestToken := c.QueryParam("request_token")
	if requestToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "request_token is required"})
	}

	if err := s.broker.CompleteLogin(c.Request().Context(), requestToken); err != nil {
		s.logger.Error().Err(err).Msg("Kite login failed")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	}

	s.logger.Info().Msg("Kite session established")
	return c.JSON(http.StatusOK, map[string]string{"status": "logged in"})
}
