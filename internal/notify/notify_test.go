package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"igot-scanner/internal/config"
	"igot-scanner/internal/models"
)

type captureChannel struct {
	name string
	sent []Notification
}

func (c *captureChannel) Name() string    { return c.name }
func (c *captureChannel) IsEnabled() bool { return true }
func (c *captureChannel) Send(ctx context.Context, n Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func sampleBundle() *models.SignalBundle {
	return &models.SignalBundle{
		Symbol:       "NIFTY",
		Spot:         23450.5,
		DeltaCE:      3.8,
		DeltaPE:      -3.0,
		Skew:         5.2,
		SkewJump:     2.4,
		DeltaOIPut:   -1200,
		CallVolRatio: 2.1,
	}
}

func TestFormatVerdictRendersOKWhenUnflagged(t *testing.T) {
	msg := FormatVerdict(sampleBundle(), models.Verdict{Trend: models.TrendConfirmedUp})

	if !strings.Contains(msg, "Flags: OK") {
		t.Errorf("message missing OK flag sentinel:\n%s", msg)
	}
	if !strings.Contains(msg, "Trend: CONFIRMED_UP") {
		t.Errorf("message missing trend:\n%s", msg)
	}
}

func TestSendVerdictSuppressesDegenerate(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	mn := NewMultiNotifier(&config.NotificationConfig{Level: "all"}, zerolog.Nop())
	mn.AddChannel(ch)

	bundle := &models.SignalBundle{Symbol: "NIFTY", Degenerate: true}
	if err := mn.SendVerdict(context.Background(), bundle, models.Verdict{Trend: models.TrendSideways}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Errorf("degenerate verdict was delivered: %+v", ch.sent)
	}
}

func TestFlaggedOnlyLevelFiltersPlainVerdicts(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	mn := NewMultiNotifier(&config.NotificationConfig{Level: "flagged_only"}, zerolog.Nop())
	mn.AddChannel(ch)
	ctx := context.Background()

	if err := mn.SendVerdict(ctx, sampleBundle(), models.Verdict{Trend: models.TrendConfirmedUp}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Fatalf("unflagged verdict passed the flagged_only filter")
	}

	flagged := models.Verdict{Trend: models.TrendFakeUp, Flags: []models.Flag{models.FlagIVPump}}
	if err := mn.SendVerdict(ctx, sampleBundle(), flagged); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("flagged verdict was not delivered")
	}
	if ch.sent[0].Type != NotificationFlagged {
		t.Errorf("notification type = %s, want %s", ch.sent[0].Type, NotificationFlagged)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	err := wh.Send(context.Background(), Notification{
		Type:    NotificationVerdict,
		Title:   "NIFTY: CONFIRMED_UP",
		Message: "Flags: OK",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["title"] != "NIFTY: CONFIRMED_UP" {
		t.Errorf("payload title = %v", got["title"])
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	if err := wh.Send(context.Background(), Notification{Type: NotificationInfo}); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestMultiNotifierSwallowsChannelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mn := NewMultiNotifier(&config.NotificationConfig{
		Level:   "all",
		Webhook: config.WebhookConfig{Enabled: true, URL: srv.URL},
	}, zerolog.Nop())

	if err := mn.SendVerdict(context.Background(), sampleBundle(), models.Verdict{Trend: models.TrendSideways}); err != nil {
		t.Fatalf("channel failure leaked out of the notifier: %v", err)
	}
}
