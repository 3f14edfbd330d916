package fees

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawObservation is the wire form of an observation as accepted by the API
// and stored in the observation window.
type RawObservation struct {
	Source     string           `json:"source" validate:"required"`
	Kind       string           `json:"kind" validate:"required,oneof=cex dex CEX DEX"`
	Exchange   string           `json:"exchange,omitempty"`
	Chain      string           `json:"chain,omitempty"`
	Pool       string           `json:"pool,omitempty"`
	Symbol     string           `json:"symbol" validate:"required"`
	MakerFee   decimal.Decimal  `json:"maker_fee"`
	TakerFee   decimal.Decimal  `json:"taker_fee"`
	Timestamp  time.Time        `json:"timestamp"`
	Volume24h  *decimal.Decimal `json:"volume_24h,omitempty"`
	Confidence *float64         `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ParseObservation validates a raw observation and converts it into the
// closed CEX/DEX form. Symbols are normalized. A missing confidence means 1.
func ParseObservation(raw RawObservation) (Observation, error) {
	source := strings.TrimSpace(raw.Source)
	if source == "" {
		return Observation{}, fmt.Errorf("%w: source is required", ErrInvalidObservation)
	}

	if err := ValidateSymbolFormat(raw.Symbol); err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrInvalidObservation, err)
	}

	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return Observation{}, err
	}

	var venue Venue
	switch kind {
	case KindCEX:
		exchange := strings.TrimSpace(raw.Exchange)
		if exchange == "" {
			exchange = source
		}
		venue = CEXVenue{Exchange: exchange}
	case KindDEX:
		if raw.Chain == "" || raw.Pool == "" {
			return Observation{}, fmt.Errorf("%w: dex observation needs chain and pool", ErrInvalidObservation)
		}
		venue = DEXVenue{Chain: raw.Chain, Pool: raw.Pool}
	}

	if raw.MakerFee.IsNegative() || raw.TakerFee.IsNegative() {
		return Observation{}, fmt.Errorf("%w: negative fee from %s", ErrInvalidObservation, source)
	}
	if raw.Timestamp.IsZero() {
		return Observation{}, fmt.Errorf("%w: timestamp is required", ErrInvalidObservation)
	}

	confidence := 1.0
	if raw.Confidence != nil {
		confidence = *raw.Confidence
		if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
			return Observation{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidObservation, confidence)
		}
	}

	return Observation{
		Source:     source,
		Venue:      venue,
		Symbol:     NormalizeSymbol(raw.Symbol),
		MakerFee:   raw.MakerFee,
		TakerFee:   raw.TakerFee,
		Timestamp:  raw.Timestamp.UTC(),
		Volume24h:  raw.Volume24h,
		Confidence: confidence,
	}, nil
}

// ToRaw converts an observation back to its wire form.
func (o Observation) ToRaw() RawObservation {
	confidence := o.Confidence
	raw := RawObservation{
		Source:     o.Source,
		Kind:       string(o.Kind()),
		Symbol:     o.Symbol,
		MakerFee:   o.MakerFee,
		TakerFee:   o.TakerFee,
		Timestamp:  o.Timestamp,
		Volume24h:  o.Volume24h,
		Confidence: &confidence,
	}
	switch v := o.Venue.(type) {
	case CEXVenue:
		raw.Exchange = v.Exchange
	case DEXVenue:
		raw.Chain = v.Chain
		raw.Pool = v.Pool
	}
	return raw
}
