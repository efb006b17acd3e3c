package matching

import (
	"fmt"
	"math"
)

// Config holds the scoring weights and match policy
type Config struct {
	NameWeight  float64
	BrandWeight float64
	PriceWeight float64

	// Threshold is the minimum score for an edge to be kept
	Threshold float64
	// ExactThreshold is the score at which a match is classified exact
	ExactThreshold float64
	// VariantNameCeiling: same brand with name similarity below this is a variant
	VariantNameCeiling float64
	// MaxRelativeGap is the relative price difference at which the price bonus reaches zero
	MaxRelativeGap float64
}

// DefaultConfig returns the default matching policy
func DefaultConfig() Config {
	return Config{
		NameWeight:         0.6,
		BrandWeight:        0.2,
		PriceWeight:        0.2,
		Threshold:          0.6,
		ExactThreshold:     0.9,
		VariantNameCeiling: 0.5,
		MaxRelativeGap:     0.3,
	}
}

// Validate checks that the weights sum to one and thresholds are in range
func (c Config) Validate() error {
	if sum := c.NameWeight + c.BrandWeight + c.PriceWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("matching weights must sum to 1, got %.4f", sum)
	}
	for name, v := range map[string]float64{
		"threshold":            c.Threshold,
		"exact_threshold":      c.ExactThreshold,
		"variant_name_ceiling": c.VariantNameCeiling,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("matching %s must be within [0,1], got %.4f", name, v)
		}
	}
	if c.ExactThreshold < c.Threshold {
		return fmt.Errorf("matching exact_threshold (%.4f) must not be below threshold (%.4f)", c.ExactThreshold, c.Threshold)
	}
	if c.MaxRelativeGap <= 0 || c.MaxRelativeGap >= 1 {
		return fmt.Errorf("matching max_relative_gap must be within (0,1), got %.4f", c.MaxRelativeGap)
	}
	return nil
}
