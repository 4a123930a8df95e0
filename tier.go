package semcache

import "fmt"

// Tier names a similarity threshold: the minimum fraction of agreeing
// signature components required to accept a candidate as a cache hit.
type Tier string

// Named tiers, strictest first.
const (
	// TierExact accepts near-identical queries only.
	TierExact Tier = "exact"
	// TierStrong requires high semantic similarity. This is the default.
	TierStrong Tier = "strong"
	// TierBroad accepts moderate matches.
	TierBroad Tier = "broad"
	// TierLoose maximizes reuse at the cost of precision.
	TierLoose Tier = "loose"
)

var tierValues = map[Tier]float64{
	TierExact:  0.95,
	TierStrong: 0.75,
	TierBroad:  0.60,
	TierLoose:  0.40,
}

// ParseTier converts a tier name to a Tier.
// Unknown names fail with ErrUnknownTier.
func ParseTier(name string) (Tier, error) {
	t := Tier(name)
	if _, ok := tierValues[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	return t, nil
}

// Value returns the minimum agreement fraction for the tier.
func (t Tier) Value() float64 {
	return tierValues[t]
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierValues[t]
	return ok
}

func (t Tier) String() string {
	return string(t)
}
