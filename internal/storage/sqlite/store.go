package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a new SQLite store with WAL self-healing. If the initial open
// fails due to stale WAL files (left behind by a crashed process), it
// verifies no other process holds them and retries once after removing the
// stale -shm/-wal files.
func New(dsn string) (*Store, error) {
	store, err := open(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// open opens a SQLite database, configures WAL mode, and creates the schema.
func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors when several horizons
	// write back concurrently. WAL mode keeps readers unblocked meanwhile.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of returning an immediate SQLITE_BUSY when the
	// connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// memorySelectColumns is the canonical column list shared by every read.
const memorySelectColumns = `hash, content, memory_type, importance, relevance,
	tags, connections, meta, embedding, embedding_dim,
	created_at, last_accessed_at, archived, archive_ref`

// GetMemories returns the working set for a horizon run.
func (s *Store) GetMemories(ctx context.Context, f storage.WorkingSetFilter) ([]*types.Memory, error) {
	f.Normalize()

	var sb strings.Builder
	sb.WriteString("SELECT " + memorySelectColumns + " FROM memories WHERE archived = 0")
	args := make([]interface{}, 0, 4)

	if f.IncludeRecordTypes {
		sb.WriteString(" AND memory_type != ?")
		args = append(args, string(types.TypeArchive))
	} else {
		sb.WriteString(" AND memory_type NOT IN (?, ?, ?)")
		args = append(args,
			string(types.TypeAssociation),
			string(types.TypeSummary),
			string(types.TypeArchive))
	}

	if f.Scope == storage.ScopeRecent && !f.Since.IsZero() {
		sb.WriteString(" AND (created_at >= ? OR last_accessed_at >= ?)")
		args = append(args, f.Since.UTC(), f.Since.UTC())
	}

	sb.WriteString(" ORDER BY created_at DESC, hash ASC LIMIT ?")
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query working set: %w", err)
	}
	defer rows.Close()

	var memories []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate working set: %w", err)
	}

	return memories, nil
}

// UpdateRelevance overwrites the relevance score of a memory.
func (s *Store) UpdateRelevance(ctx context.Context, hash string, score float64) error {
	if hash == "" {
		return fmt.Errorf("%w: hash is required", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE memories SET relevance = ? WHERE hash = ?", score, hash)
	if err != nil {
		return fmt.Errorf("failed to update relevance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check relevance update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// IncrementConnections records peerHash as a connection of hash. Re-adding
// an existing peer is a no-op.
func (s *Store) IncrementConnections(ctx context.Context, hash, peerHash string) error {
	if hash == "" || peerHash == "" {
		return fmt.Errorf("%w: hash and peer hash are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var connectionsJSON sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT connections FROM memories WHERE hash = ?", hash).Scan(&connectionsJSON)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read connections: %w", err)
	}

	var connections []string
	if connectionsJSON.Valid && connectionsJSON.String != "" {
		if err := json.Unmarshal([]byte(connectionsJSON.String), &connections); err != nil {
			return fmt.Errorf("failed to unmarshal connections: %w", err)
		}
	}

	for _, c := range connections {
		if c == peerHash {
			return nil // already connected
		}
	}
	connections = append(connections, peerHash)

	updated, err := json.Marshal(connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE memories SET connections = ? WHERE hash = ?", string(updated), hash); err != nil {
		return fmt.Errorf("failed to update connections: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit connections update: %w", err)
	}

	return nil
}

// FindAssociation looks up an association by its canonical pair key.
// Association record hashes derive from the pair key, so the lookup is a
// plain primary-key fetch.
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
		return nil, fmt.Errorf("failed to decode association %s: %w", pairKey, err)
	}
	return assoc, nil
}

// PutRecord creates or updates a Memory-shaped record (upsert by hash).
func (s *Store) PutRecord(ctx context.Context, rec *types.Memory) error {
	if rec == nil {
		return storage.ErrInvalidInput
	}
	if rec.Hash == "" {
		return fmt.Errorf("%w: record hash is required", storage.ErrInvalidInput)
	}

	var tagsJSON, connectionsJSON, metaJSON []byte
	var err error

	if len(rec.Tags) > 0 {
		tagsJSON, err = json.Marshal(rec.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
	}

	if len(rec.Connections) > 0 {
		connectionsJSON, err = json.Marshal(rec.Connections)
		if err != nil {
			return fmt.Errorf("failed to marshal connections: %w", err)
		}
	}

	if len(rec.Meta) > 0 {
		metaJSON, err = json.Marshal(rec.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal meta: %w", err)
		}
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	lastAccessed := rec.LastAccessedAt
	if lastAccessed.IsZero() {
		lastAccessed = createdAt
	}

	memoryType := rec.Type
	if memoryType == "" {
		memoryType = types.TypeStandard
	}

	query := `
		INSERT INTO memories (
			hash, content, memory_type, importance, relevance,
			tags, connections, meta, embedding, embedding_dim,
			created_at, last_accessed_at, archived, archive_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			content = excluded.content,
			memory_type = excluded.memory_type,
			importance = excluded.importance,
			relevance = excluded.relevance,
			tags = excluded.tags,
			connections = excluded.connections,
			meta = excluded.meta,
			embedding = excluded.embedding,
			embedding_dim = excluded.embedding_dim,
			last_accessed_at = excluded.last_accessed_at,
			archived = excluded.archived,
			archive_ref = excluded.archive_ref
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.Hash,
		rec.Content,
		string(memoryType),
		rec.Importance,
		rec.Relevance,
		nullableBytes(tagsJSON),
		nullableBytes(connectionsJSON),
		nullableBytes(metaJSON),
		serializeEmbedding(rec.Embedding),
		len(rec.Embedding),
		createdAt.UTC(),
		lastAccessed.UTC(),
		boolToInt(rec.Archived),
		nullableString(rec.ArchiveRef),
	)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}

	return nil
}

// MarkArchived flips a memory into the archived state. Re-flipping with the
// same archive ref is idempotent; a different ref is a conflict.
func (s *Store) MarkArchived(ctx context.Context, hash, archiveRef string) error {
	if hash == "" || archiveRef == "" {
		return fmt.Errorf("%w: hash and archive ref are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var archived int
	var currentRef sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT archived, archive_ref FROM memories WHERE hash = ?", hash).
		Scan(&archived, &currentRef)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read archive state: %w", err)
	}

	if archived != 0 {
		if currentRef.Valid && currentRef.String == archiveRef {
			return nil // retried flip, already done
		}
		return fmt.Errorf("%w: %s already references %s", storage.ErrAlreadyArchived, hash, currentRef.String)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE memories SET archived = 1, archive_ref = ? WHERE hash = ?", archiveRef, hash); err != nil {
		return fmt.Errorf("failed to mark archived: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive flip: %w", err)
	}

	return nil
}

// GetByHash retrieves a single record by hash, archived or not.
func (s *Store) GetByHash(ctx context.Context, hash string) (*types.Memory, error) {
	if hash == "" {
		return nil, fmt.Errorf("%w: hash is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+memorySelectColumns+" FROM memories WHERE hash = ?", hash)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanMemory.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory reads one memories row into a types.Memory.
func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var memoryType string
	var tagsJSON, connectionsJSON, metaJSON, archiveRef sql.NullString
	var embeddingBlob []byte
	var embeddingDim int
	var archived int

	err := row.Scan(
		&m.Hash,
		&m.Content,
		&memoryType,
		&m.Importance,
		&m.Relevance,
		&tagsJSON,
		&connectionsJSON,
		&metaJSON,
		&embeddingBlob,
		&embeddingDim,
		&m.CreatedAt,
		&m.LastAccessedAt,
		&archived,
		&archiveRef,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory: %w", err)
	}

	m.Type = types.MemoryType(memoryType)
	m.Archived = archived != 0
	if archiveRef.Valid {
		m.ArchiveRef = archiveRef.String
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &m.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if connectionsJSON.Valid && connectionsJSON.String != "" {
		if err := json.Unmarshal([]byte(connectionsJSON.String), &m.Connections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
		}
	}

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &m.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
		}
	}

	embedding, err := deserializeEmbedding(embeddingBlob, embeddingDim)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize embedding for %s: %w", m.Hash, err)
	}
	m.Embedding = embedding

	return &m, nil
}

// nullableBytes converts a byte slice to sql.NullString.
func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs
// ("file:/path/to/db.sqlite?mode=rwc"). Returns empty string for in-memory
// databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database
// path AND no other process currently holds them open (via lsof).
// Returns false if lsof is unavailable (conservative: no deletion).
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		// lsof not available (e.g., Alpine Docker); conservative fallback.
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof returns exit code 1 when no files are open, which means stale.
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
