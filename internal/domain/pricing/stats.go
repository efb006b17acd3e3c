package pricing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percentage is a relative change that may be undefined (zero or missing base)
type Percentage struct {
	Value   decimal.Decimal
	Defined bool
}

// MarshalJSON renders an undefined percentage as the string "undefined"
func (p Percentage) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return json.Marshal("undefined")
	}
	return json.Marshal(p.Value)
}

// Stats are derived from a window of observations at query time; they are
// never stored.
type Stats struct {
	Count                 int                 `json:"count"`
	PricedCount           int                 `json:"priced_count"`
	Current               decimal.NullDecimal `json:"current"`
	Lowest                decimal.NullDecimal `json:"lowest"`
	Highest               decimal.NullDecimal `json:"highest"`
	Average               decimal.NullDecimal `json:"average"`
	TotalChange           decimal.NullDecimal `json:"total_change"`
	TotalChangePercentage Percentage          `json:"total_change_percentage"`
	FirstRecordedAt       *time.Time          `json:"first_recorded_at,omitempty"`
	LastRecordedAt        *time.Time          `json:"last_recorded_at,omitempty"`
}

// ComputeStats derives statistics from observations ordered by RecordedAt.
// Changes are measured between the earliest and latest priced observations.
func ComputeStats(observations []Observation) Stats {
	stats := Stats{Count: len(observations)}
	if len(observations) == 0 {
		return stats
	}

	first := observations[0].RecordedAt
	last := observations[len(observations)-1].RecordedAt
	stats.FirstRecordedAt = &first
	stats.LastRecordedAt = &last
	stats.Current = observations[len(observations)-1].Price

	var sum, lowest, highest decimal.Decimal
	var earliest, latest decimal.NullDecimal
	for _, obs := range observations {
		if !obs.Price.Valid {
			continue
		}
		p := obs.Price.Decimal
		if stats.PricedCount == 0 {
			earliest = obs.Price
			lowest, highest = p, p
		}
		if p.LessThan(lowest) {
			lowest = p
		}
		if p.GreaterThan(highest) {
			highest = p
		}
		latest = obs.Price
		sum = sum.Add(p)
		stats.PricedCount++
	}

	if stats.PricedCount == 0 {
		return stats
	}

	stats.Lowest = decimal.NewNullDecimal(lowest)
	stats.Highest = decimal.NewNullDecimal(highest)
	stats.Average = decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(stats.PricedCount))).Round(4))

	change := latest.Decimal.Sub(earliest.Decimal)
	stats.TotalChange = decimal.NewNullDecimal(change)
	stats.TotalChangePercentage = ChangePercentage(earliest.Decimal, latest.Decimal)
	return stats
}

// ChangePercentage returns (to - from) / from * 100, undefined when from is zero.
func ChangePercentage(from, to decimal.Decimal) Percentage {
	if from.IsZero() {
		return Percentage{}
	}
	return Percentage{
		Value:   to.Sub(from).Div(from).Mul(hundred).Round(2),
		Defined: true,
	}
}
