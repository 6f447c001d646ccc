package usage

import "github.com/Yates-Labs/saga/internal/narrative"

// Stats is the running usage aggregate of one session. Every field only grows
// until the session is replaced.
type Stats struct {
	InputTokens       int     `json:"inputTokens"`
	OutputTokens      int     `json:"outputTokens"`
	ImageCount        int     `json:"imageCount"`
	PremiumImageCount int     `json:"premiumImageCount"`
	EstimatedCost     float64 `json:"estimatedCost"`
}

// Record folds one adapter usage into s. images is the number of images the
// call produced. The cost of this call is added using the rates of the
// provider that served it.
func (s *Stats) Record(u narrative.Usage, images int, tier Tier) {
	in := max(u.InputTokens, 0)
	out := max(u.OutputTokens, 0)
	images = max(images, 0)

	premium := 0
	if u.IsPremium {
		premium = images
	}

	s.InputTokens += in
	s.OutputTokens += out
	s.ImageCount += images
	s.PremiumImageCount += premium
	s.EstimatedCost += EstimateCost(in, out, images, premium, u.Provider, tier)
}
