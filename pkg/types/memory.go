package types

import "time"

// Memory is a single content item in the store, together with the scoring
// and connection state the consolidation pipeline maintains for it. Memories
// are created by external collaborators; the pipeline only ever mutates
// Relevance, Connections, and the archived state, and never deletes.
type Memory struct {
	// Identity and content
	Hash      string    `json:"hash"`                // Stable content identifier (opaque, unique)
	Content   string    `json:"content,omitempty"`   // Raw content body
	Embedding []float64 `json:"embedding,omitempty"` // Precomputed vector, dimensionality opaque

	// Classification and scoring
	Type       MemoryType `json:"memory_type"` // Decay category (critical, reference, ...)
	Importance float64    `json:"importance"`  // Base score in [0,1], immutable here
	Relevance  float64    `json:"relevance"`   // Decay-adjusted score, recomputed every run

	// Organization
	Tags        []string          `json:"tags,omitempty"`        // Set semantics, order irrelevant
	Connections []string          `json:"connections,omitempty"` // Hashes of associated memories
	Meta        map[string]string `json:"meta,omitempty"`        // Structured fields of derived records

	// Timestamps
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Cold-storage state. Archived memories stay addressable by hash; the
	// archive ref points at the ArchiveRecord that holds the compressed body.
	Archived   bool   `json:"archived,omitempty"`
	ArchiveRef string `json:"archive_ref,omitempty"`
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the memory carries at least one of the given tags.
func (m *Memory) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

// HasConnection reports whether peer is already recorded as a connection.
func (m *Memory) HasConnection(peer string) bool {
	for _, c := range m.Connections {
		if c == peer {
			return true
		}
	}
	return false
}

// AgeDays returns the memory's age in fractional days at the given instant.
// Never negative: clock skew between producer and pipeline clamps to zero.
func (m *Memory) AgeDays(now time.Time) float64 {
	age := now.Sub(m.CreatedAt).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// DaysSinceAccess returns fractional days since the last recorded access,
// falling back to CreatedAt when no access has ever been recorded.
func (m *Memory) DaysSinceAccess(now time.Time) float64 {
	last := m.LastAccessedAt
	if last.IsZero() {
		last = m.CreatedAt
	}
	d := now.Sub(last).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}
