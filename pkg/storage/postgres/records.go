// Package postgres stores the durable record series in PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StrathCole/fee-oracle/pkg/compress"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/storage"
)

// Schema creates the record table and its lookup index.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS aggregated_records (
		id UUID PRIMARY KEY,
		symbol TEXT NOT NULL,
		field TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		consensus DOUBLE PRECISION NOT NULL,
		compressed BOOLEAN NOT NULL DEFAULT FALSE,
		payload BYTEA NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS aggregated_records_symbol_ts ON aggregated_records (symbol, ts DESC)`,
}

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// RecordStore is the durable record series on PostgreSQL.
type RecordStore struct {
	db     *pgxpool.Pool
	codec  *compress.Codec
	logger *logging.Logger
}

var _ storage.RecordSeries = (*RecordStore)(nil)

// NewRecordStore creates a record store. codec may be nil.
func NewRecordStore(db *pgxpool.Pool, codec *compress.Codec, logger *logging.Logger) *RecordStore {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &RecordStore{db: db, codec: codec, logger: logger}
}

// InitSchema runs the DDL statements.
func (s *RecordStore) InitSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Health pings the pool.
func (s *RecordStore) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Put inserts one record.
func (s *RecordStore) Put(ctx context.Context, rec *fees.AggregatedRecord) error {
	payload, err := storage.EncodeRecord(s.codec, rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO aggregated_records (id, symbol, field, ts, confidence, consensus, compressed, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.Exec(ctx, query,
		rec.ID,
		rec.Symbol,
		string(rec.Field),
		rec.Timestamp,
		rec.Confidence,
		rec.Consensus,
		compress.IsCompressed(payload),
		payload,
	)
	if err != nil {
		s.logger.Error("Failed to save record", "symbol", rec.Symbol, "error", err)
		return fmt.Errorf("%w: postgres insert: %w", fees.ErrStorageFailure, err)
	}
	return nil
}

// GetLatest returns the newest record for symbol.
func (s *RecordStore) GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error) {
	query := `
		SELECT payload FROM aggregated_records
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT 1
	`

	var payload []byte
	if err := s.db.QueryRow(ctx, query, symbol).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", fees.ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("%w: postgres latest: %w", fees.ErrStorageFailure, err)
	}
	return storage.DecodeRecord(s.codec, payload)
}

// GetRange returns records with from <= ts <= to, oldest first.
func (s *RecordStore) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error) {
	query := `
		SELECT payload FROM aggregated_records
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := s.db.Query(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres range: %w", fees.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []fees.AggregatedRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			s.logger.Error("Failed to scan record", "symbol", symbol, "error", err)
			continue
		}
		rec, err := storage.DecodeRecord(s.codec, payload)
		if err != nil {
			s.logger.Error("Failed to decode record", "symbol", symbol, "error", err)
			continue
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres range: %w", fees.ErrStorageFailure, err)
	}
	return out, nil
}
