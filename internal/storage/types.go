package storage

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/mnemosyne/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the store cannot be reached at all (circuit
	// open or connection-level failure). Callers treat it as structural.
	ErrUnavailable = errors.New("store unavailable")

	// ErrAlreadyArchived indicates an archived-state flip on a memory that
	// is already archived.
	ErrAlreadyArchived = errors.New("memory already archived")
)

// IsPermanent reports whether err is a definitive outcome that retrying the
// same call cannot change. Context cancellation counts: the caller gave up.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadyArchived) ||
		errors.Is(err, context.Canceled)
}

// WorkingSetScope selects how much of the store a horizon run sees.
type WorkingSetScope string

const (
	// ScopeRecent restricts the working set to records created or accessed
	// since the filter's Since time. Used by short horizons.
	ScopeRecent WorkingSetScope = "recent"

	// ScopeAll returns the full active (non-archived) corpus. Used by the
	// horizons that run forgetting, which must see stale records.
	ScopeAll WorkingSetScope = "all"
)

// WorkingSetFilter describes the working set for one horizon run.
type WorkingSetFilter struct {
	// Horizon is the schedule tier requesting the set.
	Horizon types.Horizon

	// Scope selects recent records vs the full active corpus.
	Scope WorkingSetScope

	// Since is the lower bound for ScopeRecent: records created or accessed
	// at or after this instant qualify. Ignored for ScopeAll.
	Since time.Time

	// Limit caps the batch size. Zero means the default cap.
	Limit int

	// IncludeRecordTypes controls whether pipeline-produced record kinds
	// (associations, summaries) are part of the set. Archive records are
	// never included regardless.
	IncludeRecordTypes bool
}

// Batch size defaults shared by all backends.
const (
	DefaultBatchLimit = 500
	MaxBatchLimit     = 5000
)

// Normalize applies defaults and bounds to the filter.
func (f *WorkingSetFilter) Normalize() {
	if f.Scope != ScopeRecent && f.Scope != ScopeAll {
		f.Scope = ScopeRecent
	}

	if f.Limit < 1 {
		f.Limit = DefaultBatchLimit
	}

	if f.Limit > MaxBatchLimit {
		f.Limit = MaxBatchLimit
	}
}
