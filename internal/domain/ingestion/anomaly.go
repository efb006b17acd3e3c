package ingestion

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price anomaly bounds. Records outside them are stored but flagged.
var (
	MinPlausiblePrice    = decimal.NewFromInt(1)
	MaxPlausiblePrice    = decimal.NewFromInt(5_000_000)
	MaxPlausibleDiscount = decimal.NewFromInt(90)
)

// AnomalyKind classifies a suspicious but valid record
type AnomalyKind string

const (
	AnomalyPriceTooLow    AnomalyKind = "PRICE_TOO_LOW"
	AnomalyPriceTooHigh   AnomalyKind = "PRICE_TOO_HIGH"
	AnomalyExcessDiscount AnomalyKind = "EXCESSIVE_DISCOUNT"
)

// Anomaly is a warning about a normalized record
type Anomaly struct {
	Kind    AnomalyKind
	Message string
}

// DetectAnomalies returns the warnings for rec. It never rejects a record.
func DetectAnomalies(rec NormalizedRecord) []Anomaly {
	var out []Anomaly
	if !rec.Price.Valid {
		return out
	}
	price := rec.Price.Decimal
	if price.LessThan(MinPlausiblePrice) {
		out = append(out, Anomaly{Kind: AnomalyPriceTooLow, Message: fmt.Sprintf("price %s is below %s", price, MinPlausiblePrice)})
	}
	if price.GreaterThan(MaxPlausiblePrice) {
		out = append(out, Anomaly{Kind: AnomalyPriceTooHigh, Message: fmt.Sprintf("price %s is above %s", price, MaxPlausiblePrice)})
	}
	if discount, ok := rec.DiscountPercentage(); ok && discount.GreaterThan(MaxPlausibleDiscount) {
		out = append(out, Anomaly{Kind: AnomalyExcessDiscount, Message: fmt.Sprintf("discount %s%% exceeds %s%%", discount, MaxPlausibleDiscount)})
	}
	return out
}
