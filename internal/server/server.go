// Package server exposes the webhook and dashboard API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"igot-scanner/internal/config"
	"igot-scanner/internal/models"
	"igot-scanner/internal/notify"
)

// Evaluator runs the decision pipeline for one inbound alert.
type Evaluator interface {
	Evaluate(ctx context.Context, event models.AlertEvent) (*models.SignalBundle, models.Verdict, error)
}

// AlertStore is the persistence surface the server needs.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *models.AlertRecord) error
	RecentAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
}

// SessionBroker is the login surface for the Kite Connect OAuth flow.
type SessionBroker interface {
	GetLoginURL() string
	CompleteLogin(ctx context.Context, requestToken string) error
	IsAuthenticated() bool
}

// Server wraps the Echo HTTP server and its route dependencies.
type Server struct {
	echo       *echo.Echo
	cfg        config.ServerConfig
	aggregator Evaluator
	store      AlertStore
	notifier   notify.Notifier
	broker     SessionBroker
	logger     zerolog.Logger
}

// Config holds the construction parameters.
type Config struct {
	Server     config.ServerConfig
	Aggregator Evaluator
	Store      AlertStore
	Notifier   notify.Notifier
	Broker     SessionBroker
	Logger     zerolog.Logger
}

// New creates a server with routes and middleware registered.
func New(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		cfg:        cfg.Server,
		aggregator: cfg.Aggregator,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		broker:     cfg.Broker,
		logger:     cfg.Logger,
	}

	e.Use(echomw.Recover())
	e.Use(s.requestLogging())

	e.POST("/alert", s.handleAlert)
	e.GET("/alerts", s.handleRecentAlerts)
	e.GET("/healthz", s.handleHealth)
	e.GET("/kite/login", s.handleKiteLogin)
	e.GET("/kite/callback", s.handleKiteCallback)

	return s
}

// requestLogging logs every request with method, path, status and
// latency.
func (s *Server) requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			s.logger.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("HTTP request")
			return err
		}
	}
}

// Start begins serving and blocks until the listener fails or is shut
// down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("HTTP server listening")
	if err := s.echo.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
