// Package sqlite provides the SQLite implementation of the storage.Store
// interface, suitable for single-node deployments.
package sqlite

// Schema contains the SQL statements to create the database schema.
// Every record kind (memory, association, summary, archive) shares the
// memories table; derived-record fields travel in the meta JSON column.
const Schema = `
-- Memories table: all Memory-shaped records
CREATE TABLE IF NOT EXISTS memories (
    hash TEXT PRIMARY KEY,
    content TEXT NOT NULL DEFAULT '',
    memory_type TEXT NOT NULL DEFAULT 'standard',
    importance REAL NOT NULL DEFAULT 0,
    relevance REAL NOT NULL DEFAULT 0,

    -- Set-valued fields (JSON arrays)
    tags TEXT,
    connections TEXT,

    -- Derived-record structured fields (JSON object)
    meta TEXT,

    -- Embedding vector (little-endian float64)
    embedding BLOB,
    embedding_dim INTEGER NOT NULL DEFAULT 0,

    -- Timestamps
    created_at TIMESTAMP NOT NULL,
    last_accessed_at TIMESTAMP NOT NULL,

    -- Cold-storage state
    archived INTEGER NOT NULL DEFAULT 0,
    archive_ref TEXT
);

-- Working-set queries filter on archived state, type, and recency
CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed_at ON memories(last_accessed_at);
`
