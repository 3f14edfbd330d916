package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublisher_Notify(t *testing.T) {
	w := &mockWriter{}
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	p := newPublisher(w, "fees", nil)
	rec := &fees.AggregatedRecord{ID: "r1", Symbol: "FEE/USD", Consensus: 0.001}
	require.NoError(t, p.Notify(context.Background(), fees.Notification{
		Event: fees.EventAggregated, Symbol: "FEE/USD", Record: rec,
	}))

	require.Len(t, sent, 1)
	assert.Equal(t, []byte("FEE/USD"), sent[0].Key)
	assert.Equal(t, "event", sent[0].Headers[0].Key)

	var got fees.Notification
	require.NoError(t, json.Unmarshal(sent[0].Value, &got))
	assert.Equal(t, fees.EventAggregated, got.Event)
	assert.Equal(t, "r1", got.Record.ID)
}

func TestPublisher_NotifyError(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	p := newPublisher(w, "fees", nil)
	err := p.Notify(context.Background(), fees.Notification{Symbol: "FEE/USD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	p, err := NewPublisher(nil, WithBrokers("localhost:9092"), WithTopic("t"), WithCompression("lz4"))
	require.NoError(t, err)
	assert.Equal(t, "kafka", p.Name())
	kw := p.writer.(*kafka.Writer)
	assert.Equal(t, "t", kw.Topic)
	assert.Equal(t, kafka.Lz4, kw.Compression)
	require.NoError(t, p.Close())
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("bogus"))
}
