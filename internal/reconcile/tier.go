// Package reconcile turns recognition candidates into a reviewable, confirmable
// attendance proposal.
package reconcile

// Tier is a confidence bucket.
type Tier string

// Confidence tiers.
const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

const (
	// HighConfidence is the lower bound of the high tier.
	HighConfidence = 0.8
	// DefaultThreshold is the default lower bound of the medium tier.
	DefaultThreshold = 0.6
)

// TierFor buckets a confidence. Boundary values belong to the upper tier.
func TierFor(confidence, threshold float64) Tier {
	switch {
	case confidence >= HighConfidence:
		return TierHigh
	case confidence >= threshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Label returns the display label of the tier.
func (t Tier) Label() string {
	switch t {
	case TierHigh:
		return "High"
	case TierMedium:
		return "Medium"
	default:
		return "Low"
	}
}
