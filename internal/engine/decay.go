package engine

import (
	"math"
	"time"

	"github.com/scrypster/mnemosyne/pkg/types"
)

const (
	// defaultRetentionDays applies to unknown memory types. Matches the
	// standard tier so a mistyped memory decays conservatively.
	defaultRetentionDays = 90.0

	// connectionBoost is the per-connection multiplier added on top of the
	// decayed base. Five connections mean a memory holds 1.5x the relevance
	// of an unconnected one at the same age.
	connectionBoost = 0.1
)

// RetentionDefaultKey addresses the fallback entry of the retention table in
// per-type overrides: an override under this key changes the period applied
// to unknown memory types.
const RetentionDefaultKey types.MemoryType = "default"

// retentionDaysByType is the default e-folding time of each memory type:
// the number of days for the decayed base to fall to 1/e (~0.368) of the
// importance.
var retentionDaysByType = map[types.MemoryType]float64{
	types.TypeCritical:    365,
	types.TypeReference:   180,
	types.TypeStandard:    90,
	types.TypeTemporary:   7,
	types.TypeAssociation: 45,
	types.TypeSummary:     180,
	types.TypeArchive:     365,
}

// DecayCalculator computes relevance scores from age, importance, and
// connectivity. It is pure: the same memory and clock always produce the
// same score.
type DecayCalculator struct {
	retention map[types.MemoryType]float64
	fallback  float64
}

// NewDecayCalculator returns a calculator with the default retention table.
func NewDecayCalculator() *DecayCalculator {
	return NewDecayCalculatorWithRetention(nil)
}

// NewDecayCalculatorWithRetention returns a calculator whose retention table
// is the default overlaid with the given per-type overrides. Overrides that
// are zero or negative are ignored.
func NewDecayCalculatorWithRetention(overrides map[types.MemoryType]float64) *DecayCalculator {
	retention := make(map[types.MemoryType]float64, len(retentionDaysByType))
	for t, days := range retentionDaysByType {
		retention[t] = days
	}
	fallback := defaultRetentionDays
	for t, days := range overrides {
		if days <= 0 {
			continue
		}
		if t == RetentionDefaultKey {
			fallback = days
			continue
		}
		retention[t] = days
	}
	return &DecayCalculator{retention: retention, fallback: fallback}
}

// RetentionDays returns the retention period for a memory type. Unknown
// types fall back to the default period.
func (c *DecayCalculator) RetentionDays(t types.MemoryType) float64 {
	if days, ok := c.retention[t]; ok {
		return days
	}
	return c.fallback
}

// Relevance returns the current relevance of a memory at the given instant:
//
//	importance * e^(-ageDays/retention) * (1 + 0.1*connections)
//
// The result is clamped below at 0. There is no upper clamp: a young,
// heavily connected memory may score above its raw importance.
func (c *DecayCalculator) Relevance(m *types.Memory, now time.Time) float64 {
	age := m.AgeDays(now)
	retention := c.RetentionDays(m.Type)

	base := m.Importance * math.Exp(-age/retention)
	boosted := base * (1 + connectionBoost*float64(len(m.Connections)))

	return math.Max(boosted, 0.0)
}
