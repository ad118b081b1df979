package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Keyword is a single extracted term with its frequency weight.
type Keyword struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// TemporalRange spans the creation times covered by a summary's members.
type TemporalRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CompressedSummary is the structured condensation of one cluster: a
// representative member, ranked keywords, full member traceability, and the
// aggregate tags and temporal span. Producing a summary never deletes the
// member memories.
type CompressedSummary struct {
	RepresentativeHash string        `json:"representative_hash"`
	Keywords           []Keyword     `json:"keywords"`
	MemberHashes       []string      `json:"member_hashes"`
	Range              TemporalRange `json:"temporal_range"`
	AggregateTags      []string      `json:"aggregate_tags"`
	CompressionRatio   float64       `json:"compression_ratio"` // Member count per produced summary
	Centroid           []float64     `json:"centroid,omitempty"`
	Horizon            Horizon       `json:"horizon,omitempty"`
	Narrative          string        `json:"narrative,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`

	// MaxMemberImportance is the strongest member importance at compression
	// time. The summary record inherits it so summaries outlive the
	// memories they condense.
	MaxMemberImportance float64 `json:"max_member_importance"`
}

// Meta keys used by Memory-shaped summary records.
const (
	metaRepresentative = "representative_hash"
	metaMembers        = "member_hashes"
	metaKeywords       = "keywords"
	metaRangeFrom      = "range_from"
	metaRangeTo        = "range_to"
	metaRatio          = "compression_ratio"
)

// EncodeKeywords renders ranked keywords as a compact "term:count" list.
func EncodeKeywords(kws []Keyword) string {
	parts := make([]string, 0, len(kws))
	for _, kw := range kws {
		parts = append(parts, kw.Term+":"+strconv.Itoa(kw.Count))
	}
	return strings.Join(parts, ",")
}

// DecodeKeywords parses the encoding produced by EncodeKeywords. Malformed
// entries are dropped rather than failing the whole list.
func DecodeKeywords(s string) []Keyword {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kws := make([]Keyword, 0, len(parts))
	for _, p := range parts {
		idx := strings.LastIndex(p, ":")
		if idx <= 0 {
			continue
		}
		n, err := strconv.Atoi(p[idx+1:])
		if err != nil {
			continue
		}
		kws = append(kws, Keyword{Term: p[:idx], Count: n})
	}
	return kws
}

// Describe renders the summary as a single human-readable line. Used as
// record content and as the insight-collaborator subject.
func (s *CompressedSummary) Describe() string {
	topTerms := make([]string, 0, 5)
	for i, kw := range s.Keywords {
		if i == 5 {
			break
		}
		topTerms = append(topTerms, kw.Term)
	}
	return fmt.Sprintf("Compressed cluster of %d memories around %s; top terms: %s",
		len(s.MemberHashes), s.RepresentativeHash, strings.Join(topTerms, ", "))
}

// Record converts the summary into its Memory-shaped persistence form,
// tagged compressed-cluster. The hash is derived from the member hashes, so
// re-compressing the same cluster upserts the same record.
func (s *CompressedSummary) Record() *Memory {
	meta := map[string]string{
		metaRepresentative: s.RepresentativeHash,
		metaMembers:        strings.Join(s.MemberHashes, ","),
		metaKeywords:       EncodeKeywords(s.Keywords),
		metaRangeFrom:      s.Range.From.UTC().Format(time.RFC3339Nano),
		metaRangeTo:        s.Range.To.UTC().Format(time.RFC3339Nano),
		metaRatio:          strconv.FormatFloat(s.CompressionRatio, 'f', -1, 64),
		metaHorizon:        string(s.Horizon),
	}
	if s.Narrative != "" {
		meta[metaNarrative] = s.Narrative
	}
	tags := append([]string{}, s.AggregateTags...)
	tags = append(tags, TagCompressedCluster)
	return &Memory{
		Hash:           recordHash("summary", strings.Join(s.MemberHashes, "|")),
		Content:        s.Describe(),
		Embedding:      s.Centroid,
		Type:           TypeSummary,
		Importance:     s.MaxMemberImportance,
		Relevance:      s.MaxMemberImportance,
		Tags:           tags,
		Meta:           meta,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.CreatedAt,
	}
}

// SummaryFromRecord reconstructs a CompressedSummary from its Memory-shaped
// persistence form.
func SummaryFromRecord(m *Memory) (*CompressedSummary, error) {
	if m == nil {
		return nil, fmt.Errorf("summary record is nil")
	}
	if m.Type != TypeSummary {
		return nil, fmt.Errorf("record %s has type %q, not %q", m.Hash, m.Type, TypeSummary)
	}
	rep, ok := m.Meta[metaRepresentative]
	if !ok {
		return nil, fmt.Errorf("summary record %s missing %s", m.Hash, metaRepresentative)
	}
	var members []string
	if raw := m.Meta[metaMembers]; raw != "" {
		members = strings.Split(raw, ",")
	}
	ratio, _ := strconv.ParseFloat(m.Meta[metaRatio], 64)
	from, _ := time.Parse(time.RFC3339Nano, m.Meta[metaRangeFrom])
	to, _ := time.Parse(time.RFC3339Nano, m.Meta[metaRangeTo])
	return &CompressedSummary{
		RepresentativeHash:  rep,
		Keywords:            DecodeKeywords(m.Meta[metaKeywords]),
		MemberHashes:        members,
		Range:               TemporalRange{From: from, To: to},
		AggregateTags:       m.Tags,
		CompressionRatio:    ratio,
		Centroid:            m.Embedding,
		Horizon:             Horizon(m.Meta[metaHorizon]),
		Narrative:           m.Meta[metaNarrative],
		CreatedAt:           m.CreatedAt,
		MaxMemberImportance: m.Importance,
	}, nil
}
