// Package storage keeps the ledger in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ ledger.Store        = (*SQLiteRepository)(nil)
	_ ledger.SetupChecker = (*SQLiteRepository)(nil)
	_ ledger.Finder       = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite ledger ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append inserts tx. A row with the same id already present makes the call
// a no-op.
func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	var id sql.NullString
	if tx.ID != uuid.Nil {
		id = sql.NullString{String: tx.ID.String(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO transactions (id, date, amount, category, type, raw_text)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, tx.Date.String(), tx.Amount.StringFixed(2), tx.Category, string(tx.Type), tx.RawText)
	if err != nil {
		return &core.StoreError{Op: "append", Kind: core.ErrUnavailable, Err: err}
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.InfoContext(ctx, "Duplicate transaction ignored", "tx_id", tx.ID)
		return nil
	}
	r.logger.InfoContext(ctx, "Transaction saved to SQLite",
		"tx_id", tx.ID,
		"amount", tx.Amount.StringFixed(2),
		"category", tx.Category,
		"tx_type", tx.Type)
	return nil
}

// ReadAll returns every transaction in insertion order.
func (r *SQLiteRepository) ReadAll(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, amount, category, type, raw_text FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, &core.StoreError{Op: "read", Kind: core.ErrUnavailable, Err: err}
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, &core.StoreError{Op: "read", Kind: core.ErrUnavailable, Err: err}
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StoreError{Op: "read", Kind: core.ErrUnavailable, Err: err}
	}
	return out, nil
}

// Has reports whether a transaction with id is stored.
func (r *SQLiteRepository) Has(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE id = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, &core.StoreError{Op: "read", Kind: core.ErrUnavailable, Err: err}
	}
	return n > 0, nil
}

// Check confirms the connection and the transactions table without writing.
func (r *SQLiteRepository) Check(ctx context.Context) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM transactions LIMIT 1`).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &core.StoreError{Op: "check", Kind: core.ErrUnavailable, Err: err}
	}
	return nil
}

// EnsureReady checks the connection. The schema is migrated on open.
func (r *SQLiteRepository) EnsureReady(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &core.StoreError{Op: "setup", Kind: core.ErrUnavailable, Err: err}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		id                                   sql.NullString
		date, amount, category, typ, rawText string
	)
	if err := s.Scan(&id, &date, &amount, &category, &typ, &rawText); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	tx := core.Transaction{Category: category, Type: core.TxType(typ), RawText: rawText}
	if id.Valid {
		parsed, err := uuid.Parse(id.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("parse id %q: %w", id.String, err)
		}
		tx.ID = parsed
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Date = d
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return tx, nil
}
