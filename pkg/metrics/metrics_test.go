package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHelpers(t *testing.T) {
	RecordCycle("FEE/USD", "ok", 10*time.Millisecond)
	RecordCycle("FEE/USD", "ok", 20*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(AggregationCyclesTotal.WithLabelValues("FEE/USD", "ok")))

	RecordStorageError("redis", "put")
	assert.Equal(t, 1.0, testutil.ToFloat64(StorageErrorsTotal.WithLabelValues("redis", "put")))

	RecordNotification("kafka", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(NotificationsTotal.WithLabelValues("kafka", "error")))

	RecordQuality("FEE/USD", 0.9, 1, 0.8, 0.7, 0.6)
	assert.Equal(t, 0.9, testutil.ToFloat64(RecordConfidence.WithLabelValues("FEE/USD")))
	assert.Equal(t, 0.8, testutil.ToFloat64(DataQuality.WithLabelValues("FEE/USD", "freshness")))

	RecordConfigReload(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(ConfigReloadsTotal.WithLabelValues("rejected")))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
