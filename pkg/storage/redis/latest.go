package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/StrathCole/fee-oracle/pkg/compress"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/storage"
)

// LatestStore holds the most recent record per symbol as an encoded payload.
type LatestStore struct {
	client *Client
	codec  *compress.Codec
}

// NewLatestStore creates a latest pointer store. codec may be nil.
func NewLatestStore(client *Client, codec *compress.Codec) *LatestStore {
	return &LatestStore{client: client, codec: codec}
}

var _ storage.LatestPointer = (*LatestStore)(nil)

// SetLatest replaces the symbol's latest record.
func (s *LatestStore) SetLatest(ctx context.Context, rec *fees.AggregatedRecord) error {
	payload, err := storage.EncodeRecord(s.codec, rec)
	if err != nil {
		return err
	}
	if err := s.client.rdb.Set(ctx, s.client.wrapKey("latest", rec.Symbol), payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set latest: %w", fees.ErrStorageFailure, err)
	}
	return nil
}

// GetLatest returns the symbol's latest record or fees.ErrNotFound.
func (s *LatestStore) GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error) {
	data, err := s.client.rdb.Get(ctx, s.client.wrapKey("latest", symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", fees.ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("%w: redis get latest: %w", fees.ErrStorageFailure, err)
	}
	return storage.DecodeRecord(s.codec, data)
}
