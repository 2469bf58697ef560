// Package notify delivers scanner verdicts to external channels.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"igot-scanner/internal/config"
	"igot-scanner/internal/models"
	"igot-scanner/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendVerdict(ctx context.Context, bundle *models.SignalBundle, verdict models.Verdict) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationVerdict NotificationType = "verdict"
	NotificationFlagged NotificationType = "flagged"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelFlaggedOnly NotificationLevel = "flagged_only"
)

// MultiNotifier sends notifications to multiple channels. Channel
// failures are logged, never returned: a dead Telegram bot must not
// fail an evaluation.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a notifier with the channels enabled in the
// configuration.
func NewMultiNotifier(cfg *config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
		logger:   logger,
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	// Add enabled channels
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		ch, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			logger.Error().Err(err).Msg("Telegram channel unavailable")
		} else {
			mn.channels = append(mn.channels, ch)
		}
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelFlaggedOnly:
		return notifType == NotificationFlagged || notifType == NotificationError
	default:
		return true
	}
}

// Send fans a notification out to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		ch := ch
		err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
			return ch.Send(ctx, n)
		})
		if err != nil {
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification delivery failed")
		}
	}
	return nil
}

// SendVerdict sends an evaluated alert. Degenerate bundles carry no
// usable signals and are suppressed.
func (mn *MultiNotifier) SendVerdict(ctx context.Context, bundle *models.SignalBundle, verdict models.Verdict) error {
	if bundle.Degenerate {
		return nil
	}

	notifType := NotificationVerdict
	emoji := trendEmoji(verdict.Trend)
	if len(verdict.Flags) > 0 {
		notifType = NotificationFlagged
		emoji = "🚩"
	}

	title := fmt.Sprintf("%s %s: %s", emoji, bundle.Symbol, verdict.Trend)
	message := FormatVerdict(bundle, verdict)

	return mn.Send(ctx, Notification{
		Type:    notifType,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"symbol":         bundle.Symbol,
			"spot":           bundle.Spot,
			"dce":            bundle.DeltaCE,
			"dpe":            bundle.DeltaPE,
			"skew":           bundle.Skew,
			"skew_jump":      bundle.SkewJump,
			"ivd_ce":         bundle.IVDeltaCE,
			"ivd_pe":         bundle.IVDeltaPE,
			"iv_flag":        bundle.IVFlag,
			"doi_put":        bundle.DeltaOIPut,
			"call_vol_ratio": bundle.CallVolRatio,
			"trend":          string(verdict.Trend),
			"flags":          verdict.FlagString(),
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "❌ Scanner Error",
		Message: fmt.Sprintf("Context: %s\nError: %v", errContext, err),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// FormatVerdict renders one evaluated alert as a plain-text message.
func FormatVerdict(bundle *models.SignalBundle, verdict models.Verdict) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Spot: %.2f\n", bundle.Spot))
	sb.WriteString(fmt.Sprintf("ΔCE: %+.2f | ΔPE: %+.2f\n", bundle.DeltaCE, bundle.DeltaPE))
	sb.WriteString(fmt.Sprintf("Skew: %.2f (jump %.1fσ)\n", bundle.Skew, bundle.SkewJump))
	sb.WriteString(fmt.Sprintf("ΔOI put: %+d | Call vol: %.1fx\n", bundle.DeltaOIPut, bundle.CallVolRatio))
	if bundle.IVFlag != "" {
		sb.WriteString(fmt.Sprintf("IVΔ CE: %+.2f (%s)\n", bundle.IVDeltaCE, bundle.IVFlag))
	}
	sb.WriteString(fmt.Sprintf("Trend: %s\n", verdict.Trend))
	sb.WriteString(fmt.Sprintf("Flags: %s", verdict.FlagString()))
	return sb.String()
}

func trendEmoji(trend models.Trend) string {
	switch trend {
	case models.TrendConfirmedUp:
		return "📈"
	case models.TrendConfirmedDown:
		return "📉"
	case models.TrendFakeUp, models.TrendFakeDown:
		return "⚠️"
	default:
		return "🔔"
	}
}
