package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-indicators/internal/model"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer imports historical bars. Use one Writer per database file.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite writer opened", slog.String("path", cfg.DBPath))
	return &Writer{db: db}, nil
}

// NewWriterFromDB wraps an existing connection without touching the schema.
func NewWriterFromDB(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// WriteBars upserts bars of one symbol and timeframe in a single transaction.
// Partial bars are skipped: only closed bars are history.
func (w *Writer) WriteBars(ctx context.Context, symbol, tf string, bars []model.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, tf, t, o, h, l, c, v)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, b := range bars {
		if b.IsPartial {
			continue
		}
		if _, err := stmt.ExecContext(ctx, symbol, tf, b.T, b.O, b.H, b.L, b.C, b.V); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("sqlite insert bar t=%d: %w", b.T, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	slog.Debug("sqlite bars committed",
		slog.String("symbol", symbol), slog.String("tf", tf),
		slog.Int("bars", n), slog.Duration("took", time.Since(start)))
	return n, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
