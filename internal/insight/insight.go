// Package insight provides the optional narrative collaborator for the
// consolidation pipeline.
//
// A Generator turns a structured derived record (an association or a
// compressed summary) into a short free-text narrative. The pipeline works
// identically without one: Noop is the default and produces no narrative.
package insight

import "context"

// Generator produces optional narratives for derived records.
type Generator interface {
	// Narrate returns a short narrative for the given record description,
	// or an empty string when the generator has nothing to add.
	Narrate(ctx context.Context, subject string) (string, error)

	// Name identifies the generator in logs.
	Name() string
}

// Noop is the default generator. It never produces a narrative and never
// fails.
type Noop struct{}

// Narrate returns an empty narrative.
func (Noop) Narrate(ctx context.Context, subject string) (string, error) {
	return "", nil
}

// Name returns the generator name.
func (Noop) Name() string { return "noop" }

var _ Generator = Noop{}
