package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igot-scanner/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "igot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAlert(symbol string, at time.Time) *models.AlertRecord {
	return &models.AlertRecord{
		Symbol:       symbol,
		Time:         at,
		Move:         "CE +4.2",
		LTP:          23450.5,
		DeltaCE:      3.8,
		DeltaPE:      -3.0,
		Skew:         5.2,
		DeltaOIPut:   -1200,
		CallVolRatio: 2.1,
		IVDeltaCE:    4.1,
		IVDeltaPE:    -1.3,
		IVFlag:       "IV Pump",
		Trend:        "CONFIRMED_UP",
		Flags:        "OK",
	}
}

func TestSaveAlertAssignsID(t *testing.T) {
	s := newTestStore(t)
	a := sampleAlert("NIFTY", time.Now())

	require.NoError(t, s.SaveAlert(context.Background(), a))
	assert.Greater(t, a.ID, int64(0))
}

func TestRecentAlertsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 7, 11, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveAlert(ctx, sampleAlert("NIFTY", base.Add(time.Duration(i)*time.Minute))))
	}

	alerts, err := s.RecentAlerts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.True(t, alerts[0].Time.After(alerts[1].Time))
	assert.True(t, alerts[1].Time.After(alerts[2].Time))
}

func TestRecentAlertsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := sampleAlert("BANKNIFTY", time.Date(2025, 1, 7, 11, 0, 0, 0, time.UTC))
	in.Flags = "IV_PUMP,PUT_OI_RISE"
	in.Trend = "FAKE_UP"
	require.NoError(t, s.SaveAlert(ctx, in))

	alerts, err := s.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	got := alerts[0]
	assert.Equal(t, in.Symbol, got.Symbol)
	assert.Equal(t, in.Move, got.Move)
	assert.Equal(t, in.LTP, got.LTP)
	assert.Equal(t, in.DeltaCE, got.DeltaCE)
	assert.Equal(t, in.DeltaPE, got.DeltaPE)
	assert.Equal(t, in.Skew, got.Skew)
	assert.Equal(t, in.DeltaOIPut, got.DeltaOIPut)
	assert.Equal(t, in.CallVolRatio, got.CallVolRatio)
	assert.Equal(t, in.IVDeltaCE, got.IVDeltaCE)
	assert.Equal(t, in.IVDeltaPE, got.IVDeltaPE)
	assert.Equal(t, "IV Pump", got.IVFlag)
	assert.Equal(t, "FAKE_UP", got.Trend)
	assert.Equal(t, "IV_PUMP,PUT_OI_RISE", got.Flags)
}

func TestAlertsForSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveAlert(ctx, sampleAlert("NIFTY", base)))
	require.NoError(t, s.SaveAlert(ctx, sampleAlert("NIFTY", base.Add(time.Hour))))
	require.NoError(t, s.SaveAlert(ctx, sampleAlert("BANKNIFTY", base.Add(30*time.Minute))))

	alerts, err := s.AlertsForSymbol(ctx, "NIFTY", base, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "NIFTY", alerts[0].Symbol)
}

func TestUpdateAlertResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleAlert("NIFTY", time.Now())
	require.NoError(t, s.SaveAlert(ctx, a))
	require.NoError(t, s.UpdateAlertResults(ctx, a.ID, "WIN", "LOSS"))

	alerts, err := s.RecentAlerts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "WIN", alerts[0].CallResult)
	assert.Equal(t, "LOSS", alerts[0].PutResult)

	assert.Error(t, s.UpdateAlertResults(ctx, 99999, "WIN", "WIN"))
}

func TestBaselineFirstWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordBaseline(ctx, "2025-01-07", "NIFTY25JAN100PE", 4000, now))
	require.NoError(t, s.RecordBaseline(ctx, "2025-01-07", "NIFTY25JAN100PE", 9999, now.Add(time.Minute)))

	entries, err := s.LoadBaseline(ctx, "2025-01-07")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), entries["NIFTY25JAN100PE"])
}

func TestBaselinePerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordBaseline(ctx, "2025-01-07", "NIFTY25JAN100PE", 4000, now))
	require.NoError(t, s.RecordBaseline(ctx, "2025-01-07", "NIFTY25JAN105PE", 3000, now))
	require.NoError(t, s.RecordBaseline(ctx, "2025-01-08", "NIFTY25JAN100PE", 5200, now))

	entries, err := s.LoadBaseline(ctx, "2025-01-07")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(4000), entries["NIFTY25JAN100PE"])

	entries, err = s.LoadBaseline(ctx, "2025-01-08")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(5200), entries["NIFTY25JAN100PE"])
}

func TestLoadBaselineEmptyDay(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.LoadBaseline(context.Background(), "2025-01-07")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestPruneBaseline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := now.AddDate(0, 0, -30).Format("2006-01-02")
	require.NoError(t, s.RecordBaseline(ctx, old, "NIFTY25JAN100PE", 4000, now))
	require.NoError(t, s.RecordOpenIV(ctx, old, "NIFTY", models.OpenIV{CE: 0.21, PE: 0.23}, now))
	today := now.Format("2006-01-02")
	require.NoError(t, s.RecordBaseline(ctx, today, "NIFTY25JAN100PE", 5200, now))
	require.NoError(t, s.RecordOpenIV(ctx, today, "NIFTY", models.OpenIV{CE: 0.19, PE: 0.20}, now))

	removed, err := s.PruneBaseline(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed, "one OI row and one IV row pruned")

	entries, err := s.LoadBaseline(ctx, today)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ivs, err := s.LoadOpenIV(ctx, today)
	require.NoError(t, err)
	assert.Len(t, ivs, 1)
}

func TestOpenIVFirstWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordOpenIV(ctx, "2025-01-07", "NIFTY", models.OpenIV{CE: 0.20, PE: 0.22}, now))
	require.NoError(t, s.RecordOpenIV(ctx, "2025-01-07", "NIFTY", models.OpenIV{CE: 0.99, PE: 0.99}, now.Add(time.Minute)))

	ivs, err := s.LoadOpenIV(ctx, "2025-01-07")
	require.NoError(t, err)
	require.Len(t, ivs, 1)
	assert.Equal(t, 0.20, ivs["NIFTY"].CE)
	assert.Equal(t, 0.22, ivs["NIFTY"].PE)
}

func TestLoadOpenIVEmptyDay(t *testing.T) {
	s := newTestStore(t)

	ivs, err := s.LoadOpenIV(context.Background(), "2025-01-07")
	require.NoError(t, err)
	assert.Empty(t, ivs)
	assert.NotNil(t, ivs)
}
