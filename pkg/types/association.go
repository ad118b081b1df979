package types

import (
	"fmt"
	"strconv"
	"time"
)

// Association is a discovered connection between exactly two memories whose
// embedding similarity fell inside the configured sweet spot. The pair is
// unordered: SourceHash is always the lexicographically smaller hash.
type Association struct {
	SourceHash string          `json:"source_hash"`
	TargetHash string          `json:"target_hash"`
	Similarity float64         `json:"similarity"`       // Raw cosine similarity in (0,1)
	Class      ConnectionClass `json:"connection_class"` // Deterministic bucket of Similarity
	Horizon    Horizon         `json:"discovered_at_horizon"`
	Tags       []string        `json:"tags,omitempty"`      // Union of source/target tags + markers
	Embedding  []float64       `json:"embedding,omitempty"` // Centroid of the two source embeddings
	Importance float64         `json:"importance"`          // Mean of the source importances
	Narrative  string          `json:"narrative,omitempty"` // Optional insight-collaborator text
	CreatedAt  time.Time       `json:"created_at"`
}

// PairKey builds the canonical unordered pair key for two memory hashes.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// PairKey returns the association's canonical pair key.
func (a *Association) PairKey() string {
	return PairKey(a.SourceHash, a.TargetHash)
}

// Meta keys used by Memory-shaped association records.
const (
	metaSourceHash = "source_hash"
	metaTargetHash = "target_hash"
	metaSimilarity = "similarity"
	metaClass      = "connection_class"
	metaHorizon    = "horizon"
	metaPairKey    = "pair_key"
	metaNarrative  = "narrative"
)

// Describe renders the association as a single human-readable line. Used as
// record content and as the insight-collaborator subject.
func (a *Association) Describe() string {
	return fmt.Sprintf("Association (%s) between %s and %s, similarity %.4f",
		a.Class, a.SourceHash, a.TargetHash, a.Similarity)
}

// Record converts the association into its Memory-shaped persistence form.
// The hash is derived from the pair key alone, so re-discovering the same
// pair always writes the same record.
func (a *Association) Record() *Memory {
	meta := map[string]string{
		metaPairKey:    a.PairKey(),
		metaSourceHash: a.SourceHash,
		metaTargetHash: a.TargetHash,
		metaSimilarity: strconv.FormatFloat(a.Similarity, 'f', -1, 64),
		metaClass:      string(a.Class),
		metaHorizon:    string(a.Horizon),
	}
	if a.Narrative != "" {
		meta[metaNarrative] = a.Narrative
	}
	return &Memory{
		Hash:           recordHash("association", a.PairKey()),
		Content:        a.Describe(),
		Embedding:      a.Embedding,
		Type:           TypeAssociation,
		Importance:     a.Importance,
		Relevance:      a.Importance,
		Tags:           a.Tags,
		Meta:           meta,
		CreatedAt:      a.CreatedAt,
		LastAccessedAt: a.CreatedAt,
	}
}

// AssociationFromRecord reconstructs an Association from its Memory-shaped
// persistence form.
func AssociationFromRecord(m *Memory) (*Association, error) {
	if m == nil {
		return nil, fmt.Errorf("association record is nil")
	}
	if m.Type != TypeAssociation {
		return nil, fmt.Errorf("record %s has type %q, not %q", m.Hash, m.Type, TypeAssociation)
	}
	src, ok := m.Meta[metaSourceHash]
	if !ok {
		return nil, fmt.Errorf("association record %s missing %s", m.Hash, metaSourceHash)
	}
	tgt, ok := m.Meta[metaTargetHash]
	if !ok {
		return nil, fmt.Errorf("association record %s missing %s", m.Hash, metaTargetHash)
	}
	sim, err := strconv.ParseFloat(m.Meta[metaSimilarity], 64)
	if err != nil {
		return nil, fmt.Errorf("association record %s has bad similarity: %w", m.Hash, err)
	}
	return &Association{
		SourceHash: src,
		TargetHash: tgt,
		Similarity: sim,
		Class:      ConnectionClass(m.Meta[metaClass]),
		Horizon:    Horizon(m.Meta[metaHorizon]),
		Tags:       m.Tags,
		Embedding:  m.Embedding,
		Importance: m.Importance,
		Narrative:  m.Meta[metaNarrative],
		CreatedAt:  m.CreatedAt,
	}, nil
}

// AssociationRecordHash returns the record hash an association with the
// given pair key persists under. Used by stores to index pair-key lookups.
func AssociationRecordHash(pairKey string) string {
	return recordHash("association", pairKey)
}
