// Package storage holds the persistence helpers shared by the store
// adapters: the record payload encoding and the tiered durable/latest store.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/StrathCole/fee-oracle/pkg/compress"
	"github.com/StrathCole/fee-oracle/pkg/fees"
)

// EncodeRecord serializes rec as JSON and compresses it with codec when
// codec is non-nil.
func EncodeRecord(codec *compress.Codec, rec *fees.AggregatedRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	if codec == nil {
		return data, nil
	}
	return codec.Compress(data)
}

// DecodeRecord reverses EncodeRecord. Plain JSON payloads are accepted
// whatever the codec.
func DecodeRecord(codec *compress.Codec, data []byte) (*fees.AggregatedRecord, error) {
	if codec != nil {
		var err error
		data, err = codec.Decompress(data)
		if err != nil {
			return nil, err
		}
	}

	var rec fees.AggregatedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}
