// Package scoring computes the per-product monitoring priority: a pure,
// deterministic weighted function over price history, popularity signals,
// price level, staleness and a manual boost. Lower output means higher
// priority.
package scoring

import (
	"fmt"
	"math"
	"time"
)

// Weights are the per-factor contributions to the weighted sum. Exposed as
// a struct (not constants) so callers can load alternate weightings from
// configuration without changing the scorer.
type Weights struct {
	Volatility     float64 `mapstructure:"volatility"`
	Popularity     float64 `mapstructure:"popularity"`
	PriceLevel     float64 `mapstructure:"price_level"`
	TimeSinceCheck float64 `mapstructure:"time_since_check"`
	ManualBoost    float64 `mapstructure:"manual_boost"`
}

// DefaultWeights is the majority variant observed across the source
// implementations.
func DefaultWeights() Weights {
	return Weights{
		Volatility:     0.35,
		Popularity:     0.25,
		PriceLevel:     0.15,
		TimeSinceCheck: 0.15,
		ManualBoost:    0.10,
	}
}

// PricePoint is one historical price observation used by the volatility
// factor; it is a read model over ObservationResult, not the result type
// itself, so the scorer has no dependency on the analyzer package.
type PricePoint struct {
	Price     float64
	Timestamp time.Time
}

// PopularitySignal carries the inputs to the popularity factor.
type PopularitySignal struct {
	ActiveAlertRules int
	Views            int
}

// Input bundles everything Score needs for one product.
type Input struct {
	RecentPrices  []PricePoint // last 30 days, any order
	Popularity    PopularitySignal
	CurrentPrice  float64
	LastCheckedAt *time.Time
	ManualBoost   float64 // already clamped to [0,10] by the caller
	Now           time.Time
}

// Score computes the [1,10] priority score for Input using Weights. Only
// fails on a negative time differential, which indicates caller error
// (LastCheckedAt in the future relative to Now).
func Score(in Input, w Weights) (float64, error) {
	if in.LastCheckedAt != nil && in.Now.Before(*in.LastCheckedAt) {
		return 0, fmt.Errorf("scoring: invalid input: now (%s) precedes lastCheckedAt (%s)", in.Now, *in.LastCheckedAt)
	}

	factors := map[string]float64{
		"volatility":       volatility(in.RecentPrices),
		"popularity":       popularity(in.Popularity),
		"priceLevel":       priceLevel(in.CurrentPrice),
		"timeSinceCheck":   timeSinceCheck(in.LastCheckedAt, in.Now),
		"manualBoost":      clamp(in.ManualBoost, 0, 10),
	}

	weighted := factors["volatility"]*w.Volatility +
		factors["popularity"]*w.Popularity +
		factors["priceLevel"]*w.PriceLevel +
		factors["timeSinceCheck"]*w.TimeSinceCheck +
		factors["manualBoost"]*w.ManualBoost

	normalized := clamp(weighted, 1, 10)
	return 11 - normalized, nil
}

func volatility(points []PricePoint) float64 {
	if len(points) < 2 {
		return 5.0
	}

	min, max := points[0].Price, points[0].Price
	changes := 0
	prev := points[0].Price
	for i, p := range points {
		if p.Price < min {
			min = p.Price
		}
		if p.Price > max {
			max = p.Price
		}
		if i > 0 && p.Price != prev {
			changes++
		}
		prev = p.Price
	}
	if min == 0 {
		min = 0.01
	}

	volatilityPct := (max - min) / min * 100
	changeRatio := float64(changes) / float64(len(points)-1)

	volatilityScore := math.Min(10.0, volatilityPct/5.0)
	frequencyScore := changeRatio * 10.0

	return 0.7*volatilityScore + 0.3*frequencyScore
}

func popularity(sig PopularitySignal) float64 {
	if sig.ActiveAlertRules == 0 && sig.Views == 0 {
		return 1.0
	}
	alertsScore := math.Min(10.0, float64(sig.ActiveAlertRules)/2.0)
	if sig.Views == 0 {
		return alertsScore
	}
	viewsScore := math.Min(10.0, float64(sig.Views)/100.0)
	return 0.6*alertsScore + 0.4*viewsScore
}

func priceLevel(currentPrice float64) float64 {
	if currentPrice <= 0 {
		return 1.0
	}
	return math.Min(10.0, 1.0+3.0*math.Log10(math.Max(1.0, currentPrice)))
}

func timeSinceCheck(lastChecked *time.Time, now time.Time) float64 {
	if lastChecked == nil {
		return 10.0
	}
	hours := now.Sub(*lastChecked).Hours()
	return math.Min(10.0, hours/4.8)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundToPriority converts a continuous score to the integer [1,10]
// priority Task.Priority expects.
func RoundToPriority(score float64) int {
	rounded := int(math.Round(score))
	if rounded < 1 {
		return 1
	}
	if rounded > 10 {
		return 10
	}
	return rounded
}
