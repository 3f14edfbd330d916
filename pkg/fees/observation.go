package fees

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the category of venue an observation came from.
type Kind string

const (
	KindCEX Kind = "cex"
	KindDEX Kind = "dex"
)

// ParseKind converts a wire value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCEX:
		return KindCEX, nil
	case KindDEX:
		return KindDEX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Venue identifies where a fee was observed. It is implemented only by
// CEXVenue and DEXVenue.
type Venue interface {
	Kind() Kind
	String() string
	isVenue()
}

// CEXVenue is a centralized exchange.
type CEXVenue struct {
	Exchange string
}

func (CEXVenue) Kind() Kind       { return KindCEX }
func (v CEXVenue) String() string { return v.Exchange }
func (CEXVenue) isVenue()         {}

// DEXVenue is a liquidity pool on a decentralized exchange.
type DEXVenue struct {
	Chain string
	Pool  string
}

func (DEXVenue) Kind() Kind       { return KindDEX }
func (v DEXVenue) String() string { return v.Chain + ":" + v.Pool }
func (DEXVenue) isVenue()         {}

// Field selects which fee of an observation is aggregated.
type Field string

const (
	FieldMaker Field = "maker"
	FieldTaker Field = "taker"
)

// Fields lists every fee field in detection order.
var Fields = []Field{FieldMaker, FieldTaker}

// ParseField converts a config value into a Field.
func ParseField(s string) (Field, error) {
	switch Field(strings.ToLower(s)) {
	case FieldMaker:
		return FieldMaker, nil
	case FieldTaker:
		return FieldTaker, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
}

// Observation is one fee report from one source. Observations are
// immutable once parsed.
type Observation struct {
	Source     string
	Venue      Venue
	Symbol     string
	MakerFee   decimal.Decimal
	TakerFee   decimal.Decimal
	Timestamp  time.Time
	Volume24h  *decimal.Decimal
	Confidence float64
}

// Kind returns the venue kind.
func (o Observation) Kind() Kind {
	if o.Venue == nil {
		return ""
	}
	return o.Venue.Kind()
}

// Fee returns the selected fee as a float for statistical work.
func (o Observation) Fee(field Field) float64 {
	var d decimal.Decimal
	if field == FieldTaker {
		d = o.TakerFee
	} else {
		d = o.MakerFee
	}
	f, _ := d.Float64()
	return f
}

// Volume returns the 24h volume and whether it is known.
func (o Observation) Volume() (float64, bool) {
	if o.Volume24h == nil {
		return 0, false
	}
	f, _ := o.Volume24h.Float64()
	return f, true
}

// Age returns how old the observation is relative to now.
func (o Observation) Age(now time.Time) time.Duration {
	age := now.Sub(o.Timestamp)
	if age < 0 {
		return 0
	}
	return age
}

// WeightedValue is one observation's contribution to a single aggregation pass.
type WeightedValue struct {
	Value      float64
	Weight     float64
	Source     string
	Confidence float64
	Timestamp  time.Time
}
