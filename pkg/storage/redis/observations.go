package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

const symbolsKey = "symbols"

// ObservationStore keeps each symbol's observations in a sorted set scored
// by timestamp in milliseconds. Entries older than the retention window are
// trimmed on every append.
type ObservationStore struct {
	client    *Client
	retention time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

// NewObservationStore creates a Redis observation store.
func NewObservationStore(client *Client, retention time.Duration, logger *logging.Logger) *ObservationStore {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &ObservationStore{
		client:    client,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Append stores obs and trims the symbol's window.
func (s *ObservationStore) Append(ctx context.Context, obs fees.Observation) error {
	member, err := json.Marshal(obs.ToRaw())
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	key := s.client.wrapKey("obs", obs.Symbol)
	cutoff := s.now().Add(-s.retention).UnixMilli()

	pipe := s.client.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(obs.Timestamp.UnixMilli()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, s.retention)
	pipe.SAdd(ctx, s.client.wrapKey(symbolsKey), obs.Symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis append observation: %w", fees.ErrStorageFailure, err)
	}
	return nil
}

// GetFreshObservations returns observations for symbol not older than maxAge.
// Undecodable members are logged and skipped.
func (s *ObservationStore) GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error) {
	minScore := s.now().Add(-maxAge).UnixMilli()

	members, err := s.client.rdb.ZRangeByScore(ctx, s.client.wrapKey("obs", symbol), &redis.ZRangeBy{
		Min: strconv.FormatInt(minScore, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis read observations: %w", fees.ErrStorageFailure, err)
	}

	out := make([]fees.Observation, 0, len(members))
	for _, m := range members {
		var raw fees.RawObservation
		if err := json.Unmarshal([]byte(m), &raw); err != nil {
			s.logger.Error("Failed to decode observation", "symbol", symbol, "error", err)
			continue
		}
		obs, err := fees.ParseObservation(raw)
		if err != nil {
			s.logger.Error("Stored observation is invalid", "symbol", symbol, "error", err)
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

// ActiveSymbols lists every symbol that has received an observation.
func (s *ObservationStore) ActiveSymbols(ctx context.Context) ([]string, error) {
	symbols, err := s.client.rdb.SMembers(ctx, s.client.wrapKey(symbolsKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis list symbols: %w", fees.ErrStorageFailure, err)
	}
	sort.Strings(symbols)
	return symbols, nil
}
