package engine

import (
	"math/rand"
	"sort"
	"time"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// sampleAttemptFactor bounds rejection sampling: drawing pairs stops after
// maxPairs*factor attempts even if the quota was not filled, which only
// happens when the pair space is barely larger than the budget.
const sampleAttemptFactor = 20

// AssociationParams controls one discovery pass.
type AssociationParams struct {
	// MinSimilarity and MaxSimilarity bound the sweet spot. Both bounds are
	// exclusive: equality on either side disqualifies the pair.
	MinSimilarity float64
	MaxSimilarity float64

	// MaxPairs caps how many candidate pairs are evaluated. Zero or negative
	// disables discovery entirely.
	MaxPairs int

	// Horizon tags each emitted association with the run that found it.
	Horizon types.Horizon

	// Now stamps created_at on emitted associations. Zero means wall clock.
	Now time.Time

	// Rand drives pair sampling when the pair space exceeds MaxPairs. Nil
	// means a time-seeded source; tests inject a fixed seed.
	Rand *rand.Rand
}

// DiscoverAssociations evaluates memory pairs and returns an Association for
// every pair whose cosine similarity falls strictly inside the sweet spot.
// Pairs listed in existing (by canonical pair key) are skipped, as are pairs
// where either embedding is missing or the dimensions disagree; the second
// return lists the hashes behind those skips, sorted and deduplicated, so
// runs can report them.
//
// When the full pair space fits inside MaxPairs every pair is evaluated;
// otherwise MaxPairs pairs are sampled without replacement, with each
// endpoint drawn proportionally to its importance so the budget concentrates
// on high-value memories.
func DiscoverAssociations(memories []*types.Memory, existing map[string]bool, p AssociationParams) ([]*types.Association, []string) {
	if len(memories) < 2 || p.MaxPairs <= 0 {
		return nil, nil
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	totalPairs := len(memories) * (len(memories) - 1) / 2
	var pairs [][2]int
	if totalPairs <= p.MaxPairs {
		pairs = allPairs(len(memories))
	} else {
		rng := p.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		pairs = sampleWeightedPairs(memories, p.MaxPairs, rng)
	}

	seen := make(map[string]bool, len(pairs))
	unusable := make(map[string]bool)
	var found []*types.Association
	for _, pr := range pairs {
		src, tgt := memories[pr[0]], memories[pr[1]]
		if src.Hash == tgt.Hash {
			continue
		}
		key := types.PairKey(src.Hash, tgt.Hash)
		if existing[key] || seen[key] {
			continue
		}
		seen[key] = true

		// A bad embedding skips the pair, never the run.
		if bad := unusableEmbeddings(src, tgt); len(bad) > 0 {
			for _, h := range bad {
				unusable[h] = true
			}
			continue
		}

		sim := cosineSimilarity(src.Embedding, tgt.Embedding)
		if sim <= p.MinSimilarity || sim >= p.MaxSimilarity {
			continue
		}

		if src.Hash > tgt.Hash {
			src, tgt = tgt, src
		}
		found = append(found, &types.Association{
			SourceHash: src.Hash,
			TargetHash: tgt.Hash,
			Similarity: sim,
			Class:      types.ClassifySimilarity(sim),
			Horizon:    p.Horizon,
			Tags:       associationTags(src, tgt, p.Horizon),
			Embedding:  centroid([][]float64{src.Embedding, tgt.Embedding}),
			Importance: (src.Importance + tgt.Importance) / 2,
			CreatedAt:  now,
		})
	}

	var skipped []string
	for h := range unusable {
		skipped = append(skipped, h)
	}
	sort.Strings(skipped)
	return found, skipped
}

// unusableEmbeddings returns the hashes that make the pair unmeasurable:
// either endpoint with no embedding, or both when the dimensions disagree.
func unusableEmbeddings(src, tgt *types.Memory) []string {
	var bad []string
	if !hasEmbedding(src.Embedding) {
		bad = append(bad, src.Hash)
	}
	if !hasEmbedding(tgt.Embedding) {
		bad = append(bad, tgt.Hash)
	}
	if len(bad) == 0 && len(src.Embedding) != len(tgt.Embedding) {
		bad = append(bad, src.Hash, tgt.Hash)
	}
	return bad
}

// allPairs enumerates every unordered index pair below n.
func allPairs(n int) [][2]int {
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// sampleWeightedPairs draws maxPairs distinct unordered pairs. Each endpoint
// is drawn with probability proportional to its importance; memories with
// non-positive importance still participate via a uniform fallback when no
// memory carries weight.
func sampleWeightedPairs(memories []*types.Memory, maxPairs int, rng *rand.Rand) [][2]int {
	cumulative := make([]float64, len(memories))
	total := 0.0
	for i, m := range memories {
		w := m.Importance
		if w < 0 {
			w = 0
		}
		total += w
		cumulative[i] = total
	}

	drawIndex := func() int {
		if total <= 0 {
			return rng.Intn(len(memories))
		}
		r := rng.Float64() * total
		return sort.SearchFloat64s(cumulative, r)
	}

	seen := make(map[[2]int]bool, maxPairs)
	pairs := make([][2]int, 0, maxPairs)
	for attempts := 0; len(pairs) < maxPairs && attempts < maxPairs*sampleAttemptFactor; attempts++ {
		i, j := drawIndex(), drawIndex()
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		key := [2]int{i, j}
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, key)
	}
	return pairs
}

// associationTags unions the endpoint tags with the fixed discovery markers
// and the horizon name. Sorted so equal pairs always produce equal tags.
func associationTags(src, tgt *types.Memory, horizon types.Horizon) []string {
	set := make(map[string]bool, len(src.Tags)+len(tgt.Tags)+3)
	for _, t := range src.Tags {
		set[t] = true
	}
	for _, t := range tgt.Tags {
		set[t] = true
	}
	set[types.TagAssociation] = true
	set[types.TagDiscovery] = true
	if horizon != "" {
		set[string(horizon)] = true
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
