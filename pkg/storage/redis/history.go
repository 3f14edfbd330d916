package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/StrathCole/fee-oracle/pkg/logging"
)

// HistoryStore keeps a bounded list of past means per symbol.
type HistoryStore struct {
	client *Client
	maxLen int64
	logger *logging.Logger
}

// NewHistoryStore creates a history store capped at maxLen entries.
func NewHistoryStore(client *Client, maxLen int, logger *logging.Logger) *HistoryStore {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &HistoryStore{client: client, maxLen: int64(maxLen), logger: logger}
}

// AppendMean pushes value and trims the list to the newest maxLen entries.
func (h *HistoryStore) AppendMean(ctx context.Context, symbol string, value float64) error {
	key := h.client.wrapKey("hist", symbol)

	pipe := h.client.rdb.TxPipeline()
	pipe.RPush(ctx, key, strconv.FormatFloat(value, 'g', -1, 64))
	pipe.LTrim(ctx, key, -h.maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append mean: %w", err)
	}
	return nil
}

// GetMeanSeries returns the series oldest first.
func (h *HistoryStore) GetMeanSeries(ctx context.Context, symbol string) ([]float64, error) {
	values, err := h.client.rdb.LRange(ctx, h.client.wrapKey("hist", symbol), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read means: %w", err)
	}

	series := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.logger.Error("Failed to parse history value", "symbol", symbol, "value", v, "error", err)
			continue
		}
		series = append(series, f)
	}
	return series, nil
}
