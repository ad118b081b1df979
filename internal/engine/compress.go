package engine

import (
	"sort"
	"time"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// defaultMinClusterSize is the smallest cluster worth compressing when the
// profile does not say otherwise.
const defaultMinClusterSize = 5

// CompressionParams controls one compression pass.
type CompressionParams struct {
	// MinClusterSize is the minimum member count for CompressCluster to act.
	// Zero or negative falls back to the default.
	MinClusterSize int

	// TopKeywords caps the extracted keyword list. Zero means the extractor
	// default.
	TopKeywords int

	// Horizon tags the produced summary with the run that made it.
	Horizon types.Horizon

	// Now stamps created_at on the summary. Zero means wall clock.
	Now time.Time
}

// CompressCluster condenses a qualifying cluster into a CompressedSummary.
// Clusters smaller than MinClusterSize return nil and are left untouched.
// Member memories are never modified.
func CompressCluster(cluster []*types.Memory, p CompressionParams) *types.CompressedSummary {
	minSize := p.MinClusterSize
	if minSize <= 0 {
		minSize = defaultMinClusterSize
	}
	if len(cluster) < minSize {
		return nil
	}
	return compress(cluster, p)
}

// CompressSingle runs the degenerate single-member path: the item is its own
// representative and keywords come from its content alone. Used when
// archiving individual memories.
func CompressSingle(m *types.Memory, p CompressionParams) *types.CompressedSummary {
	if m == nil {
		return nil
	}
	return compress([]*types.Memory{m}, p)
}

func compress(members []*types.Memory, p CompressionParams) *types.CompressedSummary {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Hash order everywhere below so identical clusters compress to
	// identical summaries.
	sorted := make([]*types.Memory, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })

	vectors := make([][]float64, len(sorted))
	texts := make([]string, len(sorted))
	memberHashes := make([]string, len(sorted))
	tagSet := make(map[string]bool)
	var from, to time.Time
	maxImportance := 0.0
	for i, m := range sorted {
		vectors[i] = m.Embedding
		texts[i] = m.Content
		memberHashes[i] = m.Hash
		for _, t := range m.Tags {
			tagSet[t] = true
		}
		if i == 0 || m.CreatedAt.Before(from) {
			from = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(to) {
			to = m.CreatedAt
		}
		if m.Importance > maxImportance {
			maxImportance = m.Importance
		}
	}

	mean := centroid(vectors)

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return &types.CompressedSummary{
		RepresentativeHash:  representative(sorted, mean),
		Keywords:            ExtractKeywords(texts, p.TopKeywords),
		MemberHashes:        memberHashes,
		Range:               types.TemporalRange{From: from, To: to},
		AggregateTags:       tags,
		CompressionRatio:    float64(len(sorted)),
		Centroid:            mean,
		Horizon:             p.Horizon,
		CreatedAt:           now,
		MaxMemberImportance: maxImportance,
	}
}

// representative picks the member closest to the centroid by Euclidean
// distance. Members are already hash-sorted, so on a tie (or when no member
// has a usable embedding) the smallest hash wins.
func representative(sorted []*types.Memory, mean []float64) string {
	best := sorted[0].Hash
	bestDist := euclideanDistance(sorted[0].Embedding, mean)
	for _, m := range sorted[1:] {
		if d := euclideanDistance(m.Embedding, mean); d < bestDist {
			best = m.Hash
			bestDist = d
		}
	}
	return best
}
