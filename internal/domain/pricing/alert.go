package pricing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pair is the latest observation of an entry together with the most recent
// priced observation before it.
type Pair struct {
	EntryID  uuid.UUID
	Previous Observation
	Latest   Observation
}

// Alert flags an entry whose price dropped by at least the requested percentage
type Alert struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	PreviousPrice  decimal.Decimal `json:"previous_price"`
	LatestPrice    decimal.Decimal `json:"latest_price"`
	DropAmount     decimal.Decimal `json:"drop_amount"`
	DropPercentage decimal.Decimal `json:"drop_percentage"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// LatestPairs groups observations by entry and builds one Pair per entry.
// Observations must be ordered by RecordedAt within each entry; entries
// with fewer than two observations yield no pair.
func LatestPairs(observations []Observation) []Pair {
	byEntry := make(map[uuid.UUID][]Observation)
	order := make([]uuid.UUID, 0)
	for _, obs := range observations {
		if _, seen := byEntry[obs.EntryID]; !seen {
			order = append(order, obs.EntryID)
		}
		byEntry[obs.EntryID] = append(byEntry[obs.EntryID], obs)
	}

	pairs := make([]Pair, 0, len(order))
	for _, id := range order {
		history := byEntry[id]
		if len(history) < 2 {
			continue
		}
		latest := history[len(history)-1]
		for i := len(history) - 2; i >= 0; i-- {
			if history[i].Price.Valid {
				pairs = append(pairs, Pair{EntryID: id, Previous: history[i], Latest: latest})
				break
			}
		}
	}
	return pairs
}

// DetectDrops returns alerts for pairs whose drop is at least thresholdPercent,
// largest drop first. Only entries that are available and priced now qualify.
func DetectDrops(pairs []Pair, thresholdPercent decimal.Decimal) []Alert {
	alerts := make([]Alert, 0)
	for _, p := range pairs {
		if !p.Latest.Available || !p.Latest.Price.Valid || !p.Previous.Price.Valid {
			continue
		}
		prev := p.Previous.Price.Decimal
		if !prev.IsPositive() {
			continue
		}
		drop := prev.Sub(p.Latest.Price.Decimal)
		pct := drop.Div(prev).Mul(hundred)
		if pct.LessThan(thresholdPercent) || !drop.IsPositive() {
			continue
		}
		alerts = append(alerts, Alert{
			EntryID:        p.EntryID,
			PreviousPrice:  prev,
			LatestPrice:    p.Latest.Price.Decimal,
			DropAmount:     drop,
			DropPercentage: pct.Round(2),
			DetectedAt:     p.Latest.RecordedAt,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].DropPercentage.GreaterThan(alerts[j].DropPercentage)
	})
	return alerts
}
