// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"igot-scanner/internal/models"
)

// SQLiteStore persists evaluated alerts and the daily put OI baseline.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Evaluated alerts, one row per inbound event
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		time DATETIME NOT NULL,
		move TEXT,
		ltp REAL,
		dce REAL,
		dpe REAL,
		skew REAL,
		doi_put INTEGER,
		call_vol REAL,
		ivd_ce REAL,
		ivd_pe REAL,
		iv_flag TEXT,
		trend TEXT,
		flag TEXT,
		call_result TEXT,
		put_result TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Session-open put OI, captured once per trading day per instrument
	CREATE TABLE IF NOT EXISTS oi_baseline (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trading_day TEXT NOT NULL,
		instrument TEXT NOT NULL,
		oi INTEGER NOT NULL,
		captured_at DATETIME NOT NULL,
		UNIQUE(trading_day, instrument)
	);

	-- Session-open ATM implied vol, captured once per trading day per symbol
	CREATE TABLE IF NOT EXISTS iv_open (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trading_day TEXT NOT NULL,
		symbol TEXT NOT NULL,
		iv_ce REAL NOT NULL,
		iv_pe REAL NOT NULL,
		captured_at DATETIME NOT NULL,
		UNIQUE(trading_day, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_symbol_time ON alerts(symbol, time);
	CREATE INDEX IF NOT EXISTS idx_baseline_day ON oi_baseline(trading_day);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveAlert inserts one evaluated alert and fills in its row ID.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *models.AlertRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (symbol, time, move, ltp, dce, dpe, skew, doi_put, call_vol, ivd_ce, ivd_pe, iv_flag, trend, flag, call_result, put_result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.Symbol, alert.Time, alert.Move, alert.LTP,
		alert.DeltaCE, alert.DeltaPE, alert.Skew, alert.DeltaOIPut,
		alert.CallVolRatio, alert.IVDeltaCE, alert.IVDeltaPE, alert.IVFlag,
		alert.Trend, alert.Flags,
		alert.CallResult, alert.PutResult,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read alert id: %w", err)
	}
	alert.ID = id
	return nil
}

// RecentAlerts returns the latest evaluated alerts, newest first.
func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, time, move, ltp, dce, dpe, skew, doi_put, call_vol, ivd_ce, ivd_pe, iv_flag, trend, flag, call_result, put_result, created_at
		FROM alerts
		ORDER BY time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		err := rows.Scan(&a.ID, &a.Symbol, &a.Time, &a.Move, &a.LTP,
			&a.DeltaCE, &a.DeltaPE, &a.Skew, &a.DeltaOIPut,
			&a.CallVolRatio, &a.IVDeltaCE, &a.IVDeltaPE, &a.IVFlag,
			&a.Trend, &a.Flags,
			&a.CallResult, &a.PutResult, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlertsForSymbol returns a symbol's evaluated alerts within a time
// range, oldest first.
func (s *SQLiteStore) AlertsForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]models.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, time, move, ltp, dce, dpe, skew, doi_put, call_vol, ivd_ce, ivd_pe, iv_flag, trend, flag, call_result, put_result, created_at
		FROM alerts
		WHERE symbol = ? AND time >= ? AND time <= ?
		ORDER BY time ASC`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		err := rows.Scan(&a.ID, &a.Symbol, &a.Time, &a.Move, &a.LTP,
			&a.DeltaCE, &a.DeltaPE, &a.Skew, &a.DeltaOIPut,
			&a.CallVolRatio, &a.IVDeltaCE, &a.IVDeltaPE, &a.IVFlag,
			&a.Trend, &a.Flags,
			&a.CallResult, &a.PutResult, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpdateAlertResults records the eventual call/put outcome for an
// alert after the fact.
func (s *SQLiteStore) UpdateAlertResults(ctx context.Context, id int64, callResult, putResult string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET call_result = ?, put_result = ? WHERE id = ?`,
		callResult, putResult, id)
	if err != nil {
		return fmt.Errorf("failed to update alert results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %d not found", id)
	}
	return nil
}

// RecordBaseline stores one instrument's session-open OI. The first
// write for a (day, instrument) pair wins; later writes are ignored so
// an intraday restart cannot shift the baseline.
func (s *SQLiteStore) RecordBaseline(ctx context.Context, tradingDay, instrument string, oi int64, capturedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO oi_baseline (trading_day, instrument, oi, captured_at)
		VALUES (?, ?, ?, ?)`,
		tradingDay, instrument, oi, capturedAt)
	if err != nil {
		return fmt.Errorf("failed to record baseline: %w", err)
	}
	return nil
}

// LoadBaseline returns all captured entries for a trading day.
func (s *SQLiteStore) LoadBaseline(ctx context.Context, tradingDay string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, oi FROM oi_baseline WHERE trading_day = ?`, tradingDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]int64)
	for rows.Next() {
		var instrument string
		var oi int64
		if err := rows.Scan(&instrument, &oi); err != nil {
			return nil, fmt.Errorf("failed to scan baseline entry: %w", err)
		}
		entries[instrument] = oi
	}
	return entries, rows.Err()
}

// RecordOpenIV stores one symbol's session-open ATM implied vol pair.
// First write for a (day, symbol) pair wins, like RecordBaseline.
func (s *SQLiteStore) RecordOpenIV(ctx context.Context, tradingDay, symbol string, iv models.OpenIV, capturedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO iv_open (trading_day, symbol, iv_ce, iv_pe, captured_at)
		VALUES (?, ?, ?, ?, ?)`,
		tradingDay, symbol, iv.CE, iv.PE, capturedAt)
	if err != nil {
		return fmt.Errorf("failed to record open IV: %w", err)
	}
	return nil
}

// LoadOpenIV returns the captured open IV pairs for a trading day.
func (s *SQLiteStore) LoadOpenIV(ctx context.Context, tradingDay string) (map[string]models.OpenIV, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, iv_ce, iv_pe FROM iv_open WHERE trading_day = ?`, tradingDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load open IV: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]models.OpenIV)
	for rows.Next() {
		var symbol string
		var iv models.OpenIV
		if err := rows.Scan(&symbol, &iv.CE, &iv.PE); err != nil {
			return nil, fmt.Errorf("failed to scan open IV entry: %w", err)
		}
		entries[symbol] = iv
	}
	return entries, rows.Err()
}

// PruneBaseline removes OI baseline and open IV entries older than the
// given number of days.
func (s *SQLiteStore) PruneBaseline(ctx context.Context, keepDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -keepDays).Format("2006-01-02")
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM oi_baseline WHERE trading_day < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune baseline: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	res, err = s.db.ExecContext(ctx, `
		DELETE FROM iv_open WHERE trading_day < ?`, cutoff)
	if err != nil {
		return removed, fmt.Errorf("failed to prune open IV: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return removed, err
	}
	return removed + n, nil
}
