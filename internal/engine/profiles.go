package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// HorizonProfile fixes the consolidation intensity for one schedule tier.
// Decay always runs; every other stage is opt-in per profile.
type HorizonProfile struct {
	// Horizon names the schedule tier.
	Horizon types.Horizon

	// Interval between triggers; also the floor of the recent working-set
	// window.
	Interval time.Duration

	// Scope selects the working set: recent records for the short horizons,
	// the full active corpus for the tiers that run forgetting.
	Scope storage.WorkingSetScope

	// BatchLimit caps the working set. Zero means the storage default.
	BatchLimit int

	// MaxPairs budgets association discovery. Zero disables the stage.
	MaxPairs int

	// MinSimilarity and MaxSimilarity bound the association sweet spot,
	// both exclusive. Zero values mean the (0.3, 0.7) defaults.
	MinSimilarity float64
	MaxSimilarity float64

	// ClusterThreshold is the average-linkage cosine-distance cutoff. Zero
	// disables clustering and compression.
	ClusterThreshold float64

	// MinClusterSize is the smallest cluster worth compressing.
	MinClusterSize int

	// TopKeywords caps summary keyword extraction. Zero means the default.
	TopKeywords int

	// Forget enables archival when non-nil.
	Forget *ForgettingPolicy
}

// Default sweet-spot bounds for association similarity.
const (
	DefaultMinSimilarity = 0.3
	DefaultMaxSimilarity = 0.7
)

// Normalize fills unset tunables with their defaults.
func (p *HorizonProfile) Normalize() {
	if p.MinSimilarity == 0 && p.MaxSimilarity == 0 {
		p.MinSimilarity = DefaultMinSimilarity
		p.MaxSimilarity = DefaultMaxSimilarity
	}
	if p.MinClusterSize < 1 {
		p.MinClusterSize = defaultMinClusterSize
	}
	if p.TopKeywords < 1 {
		p.TopKeywords = defaultTopKeywords
	}
}

// Validate rejects profiles that could never run sensibly.
func (p *HorizonProfile) Validate() error {
	if !p.Horizon.Valid() {
		return fmt.Errorf("profile has unknown horizon %q", p.Horizon)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("profile %s: interval must be positive", p.Horizon)
	}
	if p.MaxPairs > 0 && p.MinSimilarity >= p.MaxSimilarity {
		return fmt.Errorf("profile %s: similarity window (%g, %g) is empty",
			p.Horizon, p.MinSimilarity, p.MaxSimilarity)
	}
	if p.ClusterThreshold < 0 || p.ClusterThreshold >= 1 {
		return fmt.Errorf("profile %s: cluster threshold %g outside [0, 1)",
			p.Horizon, p.ClusterThreshold)
	}
	if p.Forget != nil {
		if p.Forget.RelevanceThreshold <= 0 {
			return fmt.Errorf("profile %s: forgetting needs a positive relevance threshold", p.Horizon)
		}
		if p.Forget.AccessThresholdDays <= 0 {
			return fmt.Errorf("profile %s: forgetting needs a positive access threshold", p.Horizon)
		}
	}
	return nil
}

// DefaultProfiles returns the built-in intensity ladder, shortest horizon
// first. Short tiers only rescore recent records; longer tiers dig deeper,
// cluster more loosely, and from monthly onward archive what has faded.
func DefaultProfiles() []HorizonProfile {
	profiles := []HorizonProfile{
		{
			Horizon:  types.HorizonDaily,
			Interval: 24 * time.Hour,
			Scope:    storage.ScopeRecent,
		},
		{
			Horizon:          types.HorizonWeekly,
			Interval:         7 * 24 * time.Hour,
			Scope:            storage.ScopeRecent,
			MaxPairs:         100,
			ClusterThreshold: 0.25,
			MinClusterSize:   6,
		},
		{
			Horizon:          types.HorizonMonthly,
			Interval:         30 * 24 * time.Hour,
			Scope:            storage.ScopeAll,
			MaxPairs:         200,
			ClusterThreshold: 0.30,
			MinClusterSize:   5,
			Forget:           &ForgettingPolicy{RelevanceThreshold: 0.15, AccessThresholdDays: 45},
		},
		{
			Horizon:          types.HorizonQuarterly,
			Interval:         91 * 24 * time.Hour,
			Scope:            storage.ScopeAll,
			MaxPairs:         500,
			ClusterThreshold: 0.35,
			MinClusterSize:   4,
			Forget:           &ForgettingPolicy{RelevanceThreshold: 0.20, AccessThresholdDays: 60},
		},
		{
			Horizon:          types.HorizonYearly,
			Interval:         365 * 24 * time.Hour,
			Scope:            storage.ScopeAll,
			ClusterThreshold: 0.40,
			MinClusterSize:   3,
			Forget:           &ForgettingPolicy{RelevanceThreshold: 0.30, AccessThresholdDays: 90},
		},
	}
	for i := range profiles {
		profiles[i].Normalize()
	}
	return profiles
}

// ProfileFor returns the default profile for a horizon.
func ProfileFor(h types.Horizon) (HorizonProfile, error) {
	for _, p := range DefaultProfiles() {
		if p.Horizon == h {
			return p, nil
		}
	}
	return HorizonProfile{}, fmt.Errorf("no profile for horizon %q", h)
}
