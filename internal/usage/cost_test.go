package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/saga/internal/narrative"
)

var tiers = []Tier{TierBase, TierElevated}

func TestEstimateCost_ZeroCounts(t *testing.T) {
	for _, p := range narrative.Providers {
		for _, tier := range tiers {
			assert.Zero(t, EstimateCost(0, 0, 0, 0, p, tier), "%s/%s", p, tier)
		}
	}
}

func TestEstimateCost_Linear(t *testing.T) {
	for _, p := range narrative.Providers {
		for _, tier := range tiers {
			r := Rates(p, tier)
			for _, n := range []int{1, 7, 1000, 250_000} {
				assert.InDelta(t, float64(n)*r.Input, EstimateCost(n, 0, 0, 0, p, tier), 1e-12, "input %s/%s n=%d", p, tier, n)
				assert.InDelta(t, float64(n)*r.Output, EstimateCost(0, n, 0, 0, p, tier), 1e-12, "output %s/%s n=%d", p, tier, n)
				assert.InDelta(t, float64(n)*r.Image, EstimateCost(0, 0, n, 0, p, tier), 1e-9, "images %s/%s n=%d", p, tier, n)
				assert.InDelta(t, float64(n)*r.Image, EstimateCost(0, 0, 0, n, p, tier), 1e-9, "premium %s/%s n=%d", p, tier, n)
			}
		}
	}
}

func TestEstimateCost_PublishedRates(t *testing.T) {
	tests := []struct {
		provider narrative.Provider
		tier     Tier
		want     float64 // 1M in + 1M out + 1 image
	}{
		{narrative.ProviderGemini, TierBase, 0.30 + 2.50 + 0.039},
		{narrative.ProviderGemini, TierElevated, 1.25 + 10.00 + 0.039},
		{narrative.ProviderOpenAI, TierBase, 0.15 + 0.60 + 0.04},
		{narrative.ProviderOpenAI, TierElevated, 2.50 + 10.00 + 0.08},
		{narrative.ProviderClaude, TierBase, 1.00 + 5.00},
		{narrative.ProviderClaude, TierElevated, 3.00 + 15.00},
	}

	for _, tt := range tests {
		got := EstimateCost(1_000_000, 1_000_000, 1, 0, tt.provider, tt.tier)
		assert.InDelta(t, tt.want, got, 1e-9, "%s/%s", tt.provider, tt.tier)
	}
}

func TestEstimateCost_UnknownProviderUsesGeminiBase(t *testing.T) {
	want := EstimateCost(1234, 5678, 2, 1, narrative.ProviderGemini, TierBase)

	assert.Equal(t, want, EstimateCost(1234, 5678, 2, 1, narrative.Provider("mistral"), TierBase))
	assert.Equal(t, want, EstimateCost(1234, 5678, 2, 1, narrative.Provider(""), TierBase))
}

func TestRates_UnknownTierUsesBase(t *testing.T) {
	assert.Equal(t, Rates(narrative.ProviderOpenAI, TierBase), Rates(narrative.ProviderOpenAI, Tier("ultra")))
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Elevated ")
	require.NoError(t, err)
	assert.Equal(t, TierElevated, tier)

	tier, err = ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierBase, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}

func TestStats_Record(t *testing.T) {
	var s Stats

	s.Record(narrative.Usage{InputTokens: 1000, OutputTokens: 500, Provider: narrative.ProviderOpenAI}, 0, TierBase)
	s.Record(narrative.Usage{Provider: narrative.ProviderOpenAI, IsPremium: true}, 1, TierBase)
	s.Record(narrative.Usage{Provider: narrative.ProviderOpenAI}, 1, TierBase)

	assert.Equal(t, 1000, s.InputTokens)
	assert.Equal(t, 500, s.OutputTokens)
	assert.Equal(t, 2, s.ImageCount)
	assert.Equal(t, 1, s.PremiumImageCount)

	want := EstimateCost(1000, 500, 2, 1, narrative.ProviderOpenAI, TierBase)
	assert.InDelta(t, want, s.EstimatedCost, 1e-12)
}

func TestStats_RecordNeverDecreases(t *testing.T) {
	s := Stats{InputTokens: 10, OutputTokens: 10, EstimatedCost: 1}

	s.Record(narrative.Usage{InputTokens: -5, OutputTokens: -5}, -1, TierBase)

	assert.Equal(t, 10, s.InputTokens)
	assert.Equal(t, 10, s.OutputTokens)
	assert.Equal(t, 0, s.ImageCount)
	assert.Equal(t, 1.0, s.EstimatedCost)
}
