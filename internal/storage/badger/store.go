// Package badger provides a BadgerDB-backed implementation of the storage
// interfaces. Records are stored as JSON values under "mem:<hash>" keys, so
// the backend needs no schema and works well for embedded single-process
// deployments where even SQLite is too much ceremony.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

const memKeyPrefix = "mem:"

// timeNow returns the current time (allows for mock in tests).
var timeNow = time.Now

// Store implements storage.Store using BadgerDB.
type Store struct {
	db *badger.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (creating if necessary) a Badger database at dirPath.
func New(dirPath string) (*Store, error) {
	opts := badger.DefaultOptions(dirPath).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: failed to open database: %w", err)
	}

	return &Store{db: db}, nil
}

func memKey(hash string) []byte {
	return []byte(memKeyPrefix + hash)
}

// GetMemories returns the working set for a horizon run. Badger has no query
// planner, so filtering happens in Go over a prefix scan; ordering matches
// the SQL backends (created_at descending, hash ascending on ties).
func (s *Store) GetMemories(ctx context.Context, f storage.WorkingSetFilter) ([]*types.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.Normalize()

	var memories []*types.Memory
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		opts.Prefix = []byte(memKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m types.Memory
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return fmt.Errorf("badger: failed to unmarshal %s: %w", it.Item().Key(), err)
			}

			if !matchesFilter(&m, f) {
				continue
			}
			memories = append(memories, &m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(memories, func(i, j int) bool {
		if !memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].CreatedAt.After(memories[j].CreatedAt)
		}
		return memories[i].Hash < memories[j].Hash
	})

	if len(memories) > f.Limit {
		memories = memories[:f.Limit]
	}

	return memories, nil
}

// matchesFilter applies the working-set predicate a SQL backend would push
// into its WHERE clause.
func matchesFilter(m *types.Memory, f storage.WorkingSetFilter) bool {
	if m.Archived {
		return false
	}
	if m.Type == types.TypeArchive {
		return false
	}
	if !f.IncludeRecordTypes && (m.Type == types.TypeAssociation || m.Type == types.TypeSummary) {
		return false
	}
	if f.Scope == storage.ScopeRecent && !f.Since.IsZero() {
		if m.CreatedAt.Before(f.Since) && m.LastAccessedAt.Before(f.Since) {
			return false
		}
	}
	return true
}

// UpdateRelevance overwrites the relevance score of a memory.
func (s *Store) UpdateRelevance(ctx context.Context, hash string, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" {
		return fmt.Errorf("%w: hash is required", storage.ErrInvalidInput)
	}

	return s.mutate(hash, func(m *types.Memory) error {
		m.Relevance = score
		return nil
	})
}

// IncrementConnections records peerHash as a connection of hash. Badger
// transactions are serializable, so the read-modify-write is safe under
// concurrent horizon runs.
func (s *Store) IncrementConnections(ctx context.Context, hash, peerHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" || peerHash == "" {
		return fmt.Errorf("%w: hash and peer hash are required", storage.ErrInvalidInput)
	}

	return s.mutate(hash, func(m *types.Memory) error {
		for _, c := range m.Connections {
			if c == peerHash {
				return nil // already connected
			}
		}
		m.Connections = append(m.Connections, peerHash)
		return nil
	})
}

// FindAssociation looks up an association by its canonical pair key.
func (s *Store) FindAssociation(ctx context.Context, pairKey string) (*types.Association, error) {
	if pairKey == "" {
		return nil, fmt.Errorf("%w: pair key is required", storage.ErrInvalidInput)
	}

	rec, err := s.GetByHash(ctx, types.AssociationRecordHash(pairKey))
	if err != nil {
		return nil, err
	}

	assoc, err := types.AssociationFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("badger: failed to decode association %s: %w", pairKey, err)
	}
	return assoc, nil
}

// PutRecord creates or updates a Memory-shaped record (upsert by hash).
func (s *Store) PutRecord(ctx context.Context, rec *types.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return storage.ErrInvalidInput
	}
	if rec.Hash == "" {
		return fmt.Errorf("%w: record hash is required", storage.ErrInvalidInput)
	}

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = timeNow()
	}
	if stored.LastAccessedAt.IsZero() {
		stored.LastAccessedAt = stored.CreatedAt
	}
	if stored.Type == "" {
		stored.Type = types.TypeStandard
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("badger: failed to marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memKey(stored.Hash), data)
	})
	if err != nil {
		return fmt.Errorf("badger: failed to put record: %w", err)
	}
	return nil
}

// MarkArchived flips a memory into the archived state. Re-flipping with the
// same archive ref is idempotent; a different ref is a conflict.
func (s *Store) MarkArchived(ctx context.Context, hash, archiveRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" || archiveRef == "" {
		return fmt.Errorf("%w: hash and archive ref are required", storage.ErrInvalidInput)
	}

	return s.mutate(hash, func(m *types.Memory) error {
		if m.Archived {
			if m.ArchiveRef == archiveRef {
				return nil // retried flip, already done
			}
			return fmt.Errorf("%w: %s already references %s", storage.ErrAlreadyArchived, hash, m.ArchiveRef)
		}
		m.Archived = true
		m.ArchiveRef = archiveRef
		return nil
	})
}

// GetByHash retrieves a single record by hash, archived or not.
func (s *Store) GetByHash(ctx context.Context, hash string) (*types.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: hash is required", storage.ErrInvalidInput)
	}

	var m types.Memory
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memKey(hash))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("badger: failed to get %s: %w", hash, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// mutate runs a read-modify-write cycle on one record inside a single
// transaction. The mutation may return nil without changing anything; in
// that case the record is still rewritten, which is harmless.
func (s *Store) mutate(hash string, fn func(*types.Memory) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(memKey(hash))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("badger: failed to get %s: %w", hash, err)
		}

		var m types.Memory
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return fmt.Errorf("badger: failed to unmarshal %s: %w", hash, err)
		}

		if err := fn(&m); err != nil {
			return err
		}

		data, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("badger: failed to marshal %s: %w", hash, err)
		}
		return txn.Set(memKey(hash), data)
	})
}
