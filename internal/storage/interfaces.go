// Package storage defines the storage collaborator contract for the
// Mnemosyne consolidation pipeline.
//
// The pipeline owns no long-term storage of its own: every read and write
// goes through the Store interface. Backends (sqlite, postgres, badger)
// implement it independently, and the resilient decorator composes over any
// implementation to add timeouts, retries, circuit breaking, and write-rate
// limiting.
package storage

import (
	"context"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// Store is the abstract storage collaborator.
//
// Consistency contract: within a single run the store provides at least
// read-your-writes for records this pipeline wrote; no cross-run isolation
// is assumed beyond the scheduler's per-horizon mutual exclusion.
type Store interface {
	// GetMemories returns the working set for a horizon run. The filter's
	// scope decides between recently touched records and the full active
	// (non-archived) corpus. Archived records are never returned.
	GetMemories(ctx context.Context, f WorkingSetFilter) ([]*types.Memory, error)

	// UpdateRelevance overwrites the relevance score of a memory.
	// Returns ErrNotFound if the memory doesn't exist.
	UpdateRelevance(ctx context.Context, hash string, score float64) error

	// IncrementConnections records peerHash as a connection of hash.
	// Adding an already-present peer is a no-op, which keeps association
	// re-discovery idempotent. Returns ErrNotFound if hash doesn't exist.
	IncrementConnections(ctx context.Context, hash, peerHash string) error

	// FindAssociation looks up an association by its canonical pair key.
	// Returns ErrNotFound when no association exists for the pair.
	FindAssociation(ctx context.Context, pairKey string) (*types.Association, error)

	// PutRecord creates or updates a Memory-shaped record (upsert by hash).
	// Association, summary, and archive records all go through here.
	PutRecord(ctx context.Context, rec *types.Memory) error

	// MarkArchived flips a memory into the archived state and points it at
	// its archive record. The memory stays addressable via GetByHash.
	// Returns ErrNotFound if the memory doesn't exist.
	MarkArchived(ctx context.Context, hash, archiveRef string) error

	// GetByHash retrieves a single record by hash, archived or not.
	// Returns ErrNotFound if no record exists.
	GetByHash(ctx context.Context, hash string) (*types.Memory, error)

	// Close releases any resources held by the store.
	Close() error
}
