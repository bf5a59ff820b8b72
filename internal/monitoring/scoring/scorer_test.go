package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_NeverCheckedMaximizesTimeFactor(t *testing.T) {
	now := time.Now()
	score, err := Score(Input{
		RecentPrices: nil,
		CurrentPrice: 50,
		Now:          now,
	}, DefaultWeights())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 1.0)
	assert.LessOrEqual(t, score, 10.0)
}

func TestScore_ClampsToRange(t *testing.T) {
	now := time.Now()
	last := now.Add(-1000 * time.Hour)
	score, err := Score(Input{
		RecentPrices:  []PricePoint{{Price: 10}, {Price: 100}, {Price: 10}, {Price: 100}},
		CurrentPrice:  9999,
		LastCheckedAt: &last,
		ManualBoost:   10,
		Popularity:    PopularitySignal{ActiveAlertRules: 100, Views: 10000},
		Now:           now,
	}, DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "maximal factors should invert to the highest-priority score of 1")
}

func TestScore_InvalidNegativeDifferential(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	_, err := Score(Input{
		CurrentPrice:  10,
		LastCheckedAt: &future,
		Now:           now,
	}, DefaultWeights())
	assert.Error(t, err)
}

func TestScore_FewerThanTwoPricePointsDefaultsVolatility(t *testing.T) {
	assert.Equal(t, 5.0, volatility(nil))
	assert.Equal(t, 5.0, volatility([]PricePoint{{Price: 10}}))
}

func TestScore_VolatilityCombinesMagnitudeAndFrequency(t *testing.T) {
	points := []PricePoint{
		{Price: 100}, {Price: 100}, {Price: 80}, {Price: 100},
	}
	got := volatility(points)
	assert.InDelta(t, 0.7*5.0+0.3*(2.0/3.0*10.0), got, 0.01)
}

func TestScore_PopularityNoDataIsBaseline(t *testing.T) {
	assert.Equal(t, 1.0, popularity(PopularitySignal{}))
}

func TestScore_PopularityAlertsOnlyWhenNoViews(t *testing.T) {
	got := popularity(PopularitySignal{ActiveAlertRules: 4})
	assert.Equal(t, 2.0, got)
}

func TestScore_PriceLevelNonPositiveIsFloor(t *testing.T) {
	assert.Equal(t, 1.0, priceLevel(0))
	assert.Equal(t, 1.0, priceLevel(-5))
}

func TestScore_PriceLevelLogScale(t *testing.T) {
	assert.InDelta(t, 1.0, priceLevel(1), 0.01)
	assert.InDelta(t, 4.0, priceLevel(10), 0.01)
}

func TestRoundToPriority_ClampsIntegerRange(t *testing.T) {
	assert.Equal(t, 1, RoundToPriority(0.4))
	assert.Equal(t, 10, RoundToPriority(11))
	assert.Equal(t, 6, RoundToPriority(5.5))
}

func TestScore_Deterministic(t *testing.T) {
	now := time.Now()
	last := now.Add(-10 * time.Hour)
	in := Input{
		RecentPrices:  []PricePoint{{Price: 10}, {Price: 12}, {Price: 9}},
		Popularity:    PopularitySignal{ActiveAlertRules: 3, Views: 50},
		CurrentPrice:  42,
		LastCheckedAt: &last,
		ManualBoost:   2,
		Now:           now,
	}
	a, err := Score(in, DefaultWeights())
	require.NoError(t, err)
	b, err := Score(in, DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
