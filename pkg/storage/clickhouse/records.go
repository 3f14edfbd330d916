package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/compress"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/storage"
)

// Schema creates the record table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS aggregated_records (
		id String,
		symbol LowCardinality(String),
		field LowCardinality(String),
		ts DateTime64(3, 'UTC'),
		confidence Float64,
		consensus Float64,
		compressed UInt8,
		payload String
	) ENGINE = MergeTree
	ORDER BY (symbol, ts)`,
}

const (
	insertRecord = `INSERT INTO aggregated_records (id, symbol, field, ts, confidence, consensus, compressed, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	selectLatest = `SELECT payload FROM aggregated_records WHERE symbol = ? ORDER BY ts DESC LIMIT 1`
	selectRange  = `SELECT payload FROM aggregated_records WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`
)

// RecordStore is the durable record series.
type RecordStore struct {
	client *Client
	codec  *compress.Codec
	logger *logging.Logger
}

var _ storage.RecordSeries = (*RecordStore)(nil)

// NewRecordStore creates a ClickHouse record store. codec may be nil.
func NewRecordStore(client *Client, codec *compress.Codec, logger *logging.Logger) *RecordStore {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &RecordStore{client: client, codec: codec, logger: logger}
}

// Health pings the server.
func (s *RecordStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Put inserts one record.
func (s *RecordStore) Put(ctx context.Context, rec *fees.AggregatedRecord) error {
	payload, err := storage.EncodeRecord(s.codec, rec)
	if err != nil {
		return err
	}

	var compressed uint8
	if compress.IsCompressed(payload) {
		compressed = 1
	}

	_, err = s.client.db.ExecContext(ctx, insertRecord,
		rec.ID,
		rec.Symbol,
		string(rec.Field),
		rec.Timestamp.UTC(),
		rec.Confidence,
		rec.Consensus,
		compressed,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: clickhouse insert: %w", fees.ErrStorageFailure, err)
	}
	return nil
}

// GetLatest returns the newest record for symbol.
func (s *RecordStore) GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error) {
	var payload string
	err := s.client.db.QueryRowContext(ctx, selectLatest, symbol).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", fees.ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("%w: clickhouse latest: %w", fees.ErrStorageFailure, err)
	}
	return storage.DecodeRecord(s.codec, []byte(payload))
}

// GetRange returns records with from <= ts <= to, oldest first. Rows that
// fail to decode are logged and skipped.
func (s *RecordStore) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error) {
	rows, err := s.client.db.QueryContext(ctx, selectRange, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: clickhouse range: %w", fees.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []fees.AggregatedRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			s.logger.Error("Failed to scan record", "symbol", symbol, "error", err)
			continue
		}
		rec, err := storage.DecodeRecord(s.codec, []byte(payload))
		if err != nil {
			s.logger.Error("Failed to decode record", "symbol", symbol, "error", err)
			continue
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: clickhouse range: %w", fees.ErrStorageFailure, err)
	}
	return out, nil
}
