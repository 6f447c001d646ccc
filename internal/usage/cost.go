// Package usage converts token and image counts into an estimated cost and
// keeps the running per-session aggregate.
package usage

import (
	"fmt"
	"strings"

	"github.com/Yates-Labs/saga/internal/narrative"
)

// Tier is a cost and quality level. Elevated tiers use the stronger model of
// each provider.
type Tier string

const (
	TierBase     Tier = "base"
	TierElevated Tier = "elevated"
)

// ParseTier converts a user supplied name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierBase, "":
		return TierBase, nil
	case TierElevated:
		return TierElevated, nil
	}
	return "", fmt.Errorf("unknown tier %q (expected base or elevated)", s)
}

// Pricing holds per-unit rates in US dollars.
type Pricing struct {
	Input  float64 // per input token
	Output float64 // per output token
	Image  float64 // per generated image
}

const perMillion = 1.0 / 1_000_000

// pricing is keyed by provider then tier.
var pricing = map[narrative.Provider]map[Tier]Pricing{
	narrative.ProviderGemini: {
		TierBase:     {Input: 0.30 * perMillion, Output: 2.50 * perMillion, Image: 0.039}, // gemini-2.5-flash
		TierElevated: {Input: 1.25 * perMillion, Output: 10.00 * perMillion, Image: 0.039}, // gemini-2.5-pro
	},
	narrative.ProviderOpenAI: {
		TierBase:     {Input: 0.15 * perMillion, Output: 0.60 * perMillion, Image: 0.04}, // gpt-4o-mini, dall-e-3 standard
		TierElevated: {Input: 2.50 * perMillion, Output: 10.00 * perMillion, Image: 0.08}, // gpt-4o, dall-e-3 hd
	},
	narrative.ProviderClaude: {
		TierBase:     {Input: 1.00 * perMillion, Output: 5.00 * perMillion}, // claude-haiku-4-5
		TierElevated: {Input: 3.00 * perMillion, Output: 15.00 * perMillion}, // claude-sonnet-4-5
	},
}

// Rates returns the price table entry for provider and tier. Unknown
// providers fall back to Gemini and unknown tiers to TierBase.
func Rates(provider narrative.Provider, tier Tier) Pricing {
	table, ok := pricing[provider]
	if !ok {
		table = pricing[narrative.ProviderGemini]
	}
	if p, ok := table[tier]; ok {
		return p
	}
	return table[TierBase]
}

// EstimateCost returns the estimated dollar cost of the given counts.
// Premium images are charged at the same image rate as standard ones.
func EstimateCost(inputTokens, outputTokens, imageCount, premiumImageCount int, provider narrative.Provider, tier Tier) float64 {
	r := Rates(provider, tier)
	return float64(inputTokens)*r.Input +
		float64(outputTokens)*r.Output +
		float64(imageCount)*r.Image +
		float64(premiumImageCount)*r.Image
}
