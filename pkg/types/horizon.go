package types

import "fmt"

// Horizon names a consolidation schedule tier. Each horizon triggers on its
// own timer and runs the pipeline with its own intensity profile.
type Horizon string

// Schedule horizons, shortest first.
const (
	HorizonDaily     Horizon = "daily"
	HorizonWeekly    Horizon = "weekly"
	HorizonMonthly   Horizon = "monthly"
	HorizonQuarterly Horizon = "quarterly"
	HorizonYearly    Horizon = "yearly"
)

// AllHorizons lists every horizon in schedule order.
var AllHorizons = []Horizon{
	HorizonDaily,
	HorizonWeekly,
	HorizonMonthly,
	HorizonQuarterly,
	HorizonYearly,
}

// Valid reports whether h is a known horizon.
func (h Horizon) Valid() bool {
	for _, known := range AllHorizons {
		if known == h {
			return true
		}
	}
	return false
}

// ParseHorizon converts a string into a Horizon, rejecting unknown names.
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(s)
	if !h.Valid() {
		return "", fmt.Errorf("unknown horizon %q", s)
	}
	return h, nil
}
