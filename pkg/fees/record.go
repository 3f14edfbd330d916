package fees

import "time"

// EventAggregated is emitted after a record has been persisted.
const EventAggregated = "data:aggregated"

// DataQualityMetrics summarizes the inputs behind one record.
type DataQualityMetrics struct {
	Completeness float64   `json:"completeness"`
	Freshness    float64   `json:"freshness"`
	Consistency  float64   `json:"consistency"`
	Accuracy     float64   `json:"accuracy"`
	OutlierCount int       `json:"outlier_count"`
	SourceCount  int       `json:"source_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// AggregatedRecord is the result of one aggregation cycle for one symbol.
// Records are never mutated; the next cycle supersedes them.
type AggregatedRecord struct {
	ID                   string             `json:"id"`
	Symbol               string             `json:"symbol"`
	Field                Field              `json:"field"`
	CexFees              []float64          `json:"cex_fees"`
	DexFees              []float64          `json:"dex_fees"`
	WeightedMedianCexFee float64            `json:"weighted_median_cex_fee"`
	WeightedMedianDexFee float64            `json:"weighted_median_dex_fee"`
	Consensus            float64            `json:"consensus"`
	Confidence           float64            `json:"confidence"`
	Timestamp            time.Time          `json:"timestamp"`
	Sources              []string           `json:"sources"`
	Outliers             []string           `json:"outliers"`
	Warnings             []string           `json:"warnings,omitempty"`
	DataQuality          DataQualityMetrics `json:"data_quality"`
}

// Notification is handed to every notifier after a record is persisted.
type Notification struct {
	Event  string            `json:"event"`
	Symbol string            `json:"symbol"`
	Record *AggregatedRecord `json:"record"`
}
