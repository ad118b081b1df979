// Package types defines the core data structures for the Mnemosyne
// consolidation pipeline: memories, associations, compressed summaries,
// archive records, schedule horizons, and per-run reports.
package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// MemoryType classifies a memory and determines its decay retention period.
type MemoryType string

// Memory type constants. Unknown values are tolerated everywhere: the decay
// retention table falls back to its default entry rather than rejecting them.
const (
	// TypeCritical marks memories that decay slowest.
	TypeCritical MemoryType = "critical"

	// TypeReference marks long-lived reference material.
	TypeReference MemoryType = "reference"

	// TypeStandard is the ordinary memory type.
	TypeStandard MemoryType = "standard"

	// TypeTemporary marks short-lived memories with fast decay.
	TypeTemporary MemoryType = "temporary"

	// TypeAssociation marks records produced by association discovery.
	TypeAssociation MemoryType = "association"

	// TypeSummary marks compressed-cluster summary records.
	TypeSummary MemoryType = "summary"

	// TypeArchive marks cold-storage archive records.
	TypeArchive MemoryType = "archive"
)

// ValidMemoryTypes is a slice of all known memory types for validation.
var ValidMemoryTypes = []MemoryType{
	TypeCritical,
	TypeReference,
	TypeStandard,
	TypeTemporary,
	TypeAssociation,
	TypeSummary,
	TypeArchive,
}

// IsValidMemoryType checks if the given memory type is a known one.
func IsValidMemoryType(t MemoryType) bool {
	for _, valid := range ValidMemoryTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// ConnectionClass buckets an association's similarity into a named strength.
type ConnectionClass string

// Connection class constants, strongest first.
const (
	ClassStrongConceptual ConnectionClass = "strong-conceptual"
	ClassModerateThematic ConnectionClass = "moderate-thematic"
	ClassSubtlePattern    ConnectionClass = "subtle-pattern"
	ClassCreativeLeap     ConnectionClass = "creative-leap"
)

// ClassifySimilarity maps a qualifying similarity value to its connection
// class. Thresholds are fixed: >0.6 strong-conceptual, >0.5 moderate-thematic,
// >0.4 subtle-pattern, anything lower is a creative leap.
func ClassifySimilarity(sim float64) ConnectionClass {
	switch {
	case sim > 0.6:
		return ClassStrongConceptual
	case sim > 0.5:
		return ClassModerateThematic
	case sim > 0.4:
		return ClassSubtlePattern
	default:
		return ClassCreativeLeap
	}
}

// ArchiveReason records which signal drove a memory into cold storage.
type ArchiveReason string

// Archive reason constants.
const (
	ReasonRelevanceThreshold ArchiveReason = "relevance_threshold"
	ReasonNoConnections      ArchiveReason = "no_connections"
	ReasonStaleAccess        ArchiveReason = "stale_access"
)

// Well-known tags attached to pipeline-produced records.
const (
	TagAssociation       = "association"
	TagDiscovery         = "discovery"
	TagCompressedCluster = "compressed-cluster"
	TagArchive           = "archive"
)

// recordHash derives the stable content hash for a pipeline-produced record.
// The kind prefix keeps hashes of different record kinds disjoint even when
// they share a key. Deterministic hashing is what makes record writes
// idempotent across re-runs: the same input always upserts the same hash.
func recordHash(kind, key string) string {
	sum := sha256.Sum256([]byte(kind + "|" + key))
	return hex.EncodeToString(sum[:])
}
