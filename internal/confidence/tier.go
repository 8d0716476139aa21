// Package confidence turns ranked retrieval results into tiered chat responses.
package confidence

import "rubberbot/internal/domain"

const (
	HighThreshold   = 0.65
	MediumThreshold = 0.30
)

// Classify maps the top retrieval score to a tier.
func Classify(score float64) domain.Tier {
	switch {
	case score >= HighThreshold:
		return domain.TierHigh
	case score >= MediumThreshold:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}
