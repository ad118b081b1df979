package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// ErrProtectedMemory is returned when a protected memory reaches the archive
// step. Selection filters protected memories out, so seeing this error means
// a bug upstream, and it must surface loudly rather than archive silently.
var ErrProtectedMemory = errors.New("refusing to archive protected memory")

// DefaultProtectedTags shield memories from forgetting regardless of score.
var DefaultProtectedTags = []string{"important", "critical", "reference"}

// ForgettingPolicy decides which memories are eligible for archival.
type ForgettingPolicy struct {
	// RelevanceThreshold: only memories strictly below it are eligible.
	RelevanceThreshold float64

	// AccessThresholdDays: only memories untouched for strictly more days
	// are eligible.
	AccessThresholdDays float64

	// ProtectedTags are never eligible. Nil means DefaultProtectedTags; an
	// explicitly empty list disables protection.
	ProtectedTags []string
}

func (p ForgettingPolicy) protectedTags() []string {
	if p.ProtectedTags == nil {
		return DefaultProtectedTags
	}
	return p.ProtectedTags
}

// SelectForgettingCandidates returns the memories eligible for archival. All
// four conditions must hold: unprotected, relevance below threshold, zero
// connections, and stale past the access threshold.
func SelectForgettingCandidates(memories []*types.Memory, policy ForgettingPolicy, now time.Time) []*types.Memory {
	protected := policy.protectedTags()

	var candidates []*types.Memory
	for _, m := range memories {
		if m.HasAnyTag(protected) {
			continue
		}
		if m.Relevance >= policy.RelevanceThreshold {
			continue
		}
		if len(m.Connections) > 0 {
			continue
		}
		if m.DaysSinceAccess(now) <= policy.AccessThresholdDays {
			continue
		}
		candidates = append(candidates, m)
	}
	return candidates
}

// archiveReason explains why a candidate was archived. Severity order: a
// deeply sunk relevance score beats staleness beats mere disconnection.
func archiveReason(m *types.Memory, policy ForgettingPolicy, now time.Time) types.ArchiveReason {
	if m.Relevance < policy.RelevanceThreshold/2 {
		return types.ReasonRelevanceThreshold
	}
	if m.DaysSinceAccess(now) > 2*policy.AccessThresholdDays {
		return types.ReasonStaleAccess
	}
	return types.ReasonNoConnections
}

// ArchiveParams controls one archival pass.
type ArchiveParams struct {
	Policy  ForgettingPolicy
	Horizon types.Horizon
	Now     time.Time
	// TopKeywords for the single-item summaries. Zero means the extractor
	// default.
	TopKeywords int
}

// ArchiveMemories archives candidates one at a time: compress the memory
// via the single-item path, persist a durable archive record, and only then
// flip the original's archived state. A failure on any step skips the flip
// for that memory and is reported per item; the next run retries the whole
// sequence idempotently.
func ArchiveMemories(ctx context.Context, store storage.Store, candidates []*types.Memory, p ArchiveParams) ([]*types.ArchiveRecord, []error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	var archived []*types.ArchiveRecord
	var itemErrs []error
	for _, m := range candidates {
		if err := ctx.Err(); err != nil {
			itemErrs = append(itemErrs, err)
			return archived, itemErrs
		}

		// Selection should never let a protected memory through; refuse
		// loudly if one arrives anyway.
		if m.HasAnyTag(p.Policy.protectedTags()) {
			itemErrs = append(itemErrs, fmt.Errorf("%w: %s", ErrProtectedMemory, m.Hash))
			continue
		}

		payload, err := types.CompressPayload(m.Content)
		if err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("compress %s: %w", m.Hash, err))
			continue
		}

		rec := &types.ArchiveRecord{
			OriginalHash: m.Hash,
			Payload:      payload,
			Summary: CompressSingle(m, CompressionParams{
				TopKeywords: p.TopKeywords,
				Horizon:     p.Horizon,
				Now:         now,
			}),
			ArchivedAt: now,
			Horizon:    p.Horizon,
			Reason:     archiveReason(m, p.Policy, now),
		}

		// Durable archive record first; the state flip never runs without it.
		if err := store.PutRecord(ctx, rec.Record()); err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("persist archive for %s: %w", m.Hash, err))
			continue
		}
		if err := store.MarkArchived(ctx, m.Hash, rec.RecordHash()); err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("mark %s archived: %w", m.Hash, err))
			continue
		}

		archived = append(archived, rec)
	}
	return archived, itemErrs
}
