package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.InstrumentRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/instruments.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Single writer; the catalog is read once at startup and on sync
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS instruments (
		symbol_key TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		gateway TEXT NOT NULL,
		base_asset TEXT NOT NULL DEFAULT '',
		quote_asset TEXT NOT NULL DEFAULT '',
		price_precision INTEGER NOT NULL DEFAULT 0,
		quantity_precision INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_instruments_exchange ON instruments (exchange);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Upsert inserts or refreshes instruments in a single transaction.
func (r *Repository) Upsert(ctx context.Context, instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}
	const query = `
	INSERT INTO instruments (symbol_key, symbol, exchange, gateway, base_asset, quote_asset,
	                         price_precision, quantity_precision, status, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol_key) DO UPDATE SET
		gateway = excluded.gateway,
		base_asset = excluded.base_asset,
		quote_asset = excluded.quote_asset,
		price_precision = excluded.price_precision,
		quantity_precision = excluded.quantity_precision,
		status = excluded.status,
		updated_at = excluded.updated_at`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin instrument upsert: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() // No-op after Commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare instrument upsert: %w", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	for _, inst := range instruments {
		updatedAt := inst.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			inst.Key(), inst.Symbol, string(inst.Exchange), inst.Gateway, inst.BaseAsset, inst.QuoteAsset,
			inst.PricePrecision, inst.QuantityPrecision, inst.Status, updatedAt)
		if err != nil {
			return fmt.Errorf("%w: failed to upsert instrument %s: %w", ports.ErrUpdateFailed, inst.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit instrument upsert: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Instruments upserted", map[string]interface{}{"count": len(instruments)})
	return nil
}

// FindByKey retrieves an instrument by its symbol key.
func (r *Repository) FindByKey(ctx context.Context, key string) (*domain.Instrument, error) {
	const query = `
	SELECT symbol, exchange, gateway, base_asset, quote_asset,
	       price_precision, quantity_precision, status, updated_at
	FROM instruments
	WHERE symbol_key = ?`

	row := r.db.QueryRowContext(ctx, query, key)
	inst, err := scanInstrument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Instrument not found", map[string]interface{}{"symbol": key})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("%w: failed to query instrument %s: %w", ports.ErrQueryFailed, key, err)
	}
	return inst, nil
}

// All retrieves every stored instrument ordered by symbol key.
func (r *Repository) All(ctx context.Context) ([]domain.Instrument, error) {
	const query = `
	SELECT symbol, exchange, gateway, base_asset, quote_asset,
	       price_precision, quantity_precision, status, updated_at
	FROM instruments
	ORDER BY symbol_key`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query instruments: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	instruments := make([]domain.Instrument, 0)
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument during All: %w", err)
		}
		instruments = append(instruments, *inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument rows: %w", err)
	}
	return instruments, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanInstrument scans a row into a domain.Instrument struct.
func scanInstrument(s scanner) (*domain.Instrument, error) {
	inst := &domain.Instrument{}
	var exchange string
	err := s.Scan(
		&inst.Symbol, &exchange, &inst.Gateway, &inst.BaseAsset, &inst.QuoteAsset,
		&inst.PricePrecision, &inst.QuantityPrecision, &inst.Status, &inst.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	inst.Exchange = domain.Exchange(exchange)
	return inst, nil
}
