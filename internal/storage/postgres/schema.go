// Package postgres provides the PostgreSQL implementation of the
// storage.Store interface, suitable for shared multi-node deployments.
package postgres

// Schema contains the SQL statements to create the database schema.
// Embeddings are always stored in the BYTEA column; the pgvector column is
// added by MigrationPgvector when the extension is available.
const Schema = `
-- Memories table: all Memory-shaped records
CREATE TABLE IF NOT EXISTS memories (
    hash TEXT PRIMARY KEY,
    content TEXT NOT NULL DEFAULT '',
    memory_type TEXT NOT NULL DEFAULT 'standard',
    importance DOUBLE PRECISION NOT NULL DEFAULT 0,
    relevance DOUBLE PRECISION NOT NULL DEFAULT 0,

    -- Set-valued fields (JSON)
    tags JSONB,
    connections JSONB,

    -- Derived-record structured fields
    meta JSONB,

    -- Embedding vector (little-endian float64)
    embedding BYTEA,
    embedding_dim INTEGER NOT NULL DEFAULT 0,

    -- Timestamps
    created_at TIMESTAMPTZ NOT NULL,
    last_accessed_at TIMESTAMPTZ NOT NULL,

    -- Cold-storage state
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    archive_ref TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed_at ON memories(last_accessed_at);
`

// MigrationPgvector adds the vector mirror column used for cosine-distance
// queries by surrounding tooling. Applied only when the extension loads.
const MigrationPgvector = `
ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
