package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"trading-indicators/internal/model"
)

// Reader provides read-only access to historical bars for session seeding.
// It implements model.BarSource.
type Reader struct {
	db *sql.DB
}

var _ model.BarSource = (*Reader)(nil)

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", slog.String("path", dbPath))
	return &Reader{db: db}, nil
}

// NewReaderFromDB wraps an existing connection.
func NewReaderFromDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadBars returns the final bars of symbol on tf with T > afterMs, ordered by
// T ascending for correct replay order.
func (r *Reader) ReadBars(ctx context.Context, symbol, tf string, afterMs int64) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t, o, h, l, c, v
		FROM bars
		WHERE symbol = ? AND tf = ? AND t > ?
		ORDER BY t ASC
	`, symbol, tf, afterMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars %s %s: %w", tf, symbol, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.T, &b.O, &b.H, &b.L, &b.C, &b.V); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists the symbols that have bars on tf.
func (r *Reader) Symbols(ctx context.Context, tf string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars WHERE tf = ? ORDER BY symbol`, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
