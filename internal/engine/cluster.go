package engine

import (
	"sort"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// ClusterMemories groups items by agglomerative average-linkage clustering
// on cosine distance, merging while the closest cluster pair sits strictly
// below distanceThreshold. Items without a usable embedding cannot be
// measured and come back as singletons.
//
// The input is re-sorted by hash before clustering and every tie breaks on
// hash order, so a fixed item set and threshold always produce the same
// clusters regardless of input ordering.
func ClusterMemories(items []*types.Memory, distanceThreshold float64) [][]*types.Memory {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]*types.Memory, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })

	var clusterable []*types.Memory
	var unmeasurable [][]*types.Memory
	for _, m := range sorted {
		if hasEmbedding(m.Embedding) {
			clusterable = append(clusterable, m)
		} else {
			unmeasurable = append(unmeasurable, []*types.Memory{m})
		}
	}

	clusters := agglomerate(clusterable, distanceThreshold)
	clusters = append(clusters, unmeasurable...)

	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0].Hash < clusters[j][0].Hash })
	return clusters
}

// agglomerate runs average-linkage merging over hash-sorted items. Cluster
// distance is tracked as the sum of cross-pair item distances, so a merge
// only needs to add the two sum rows together.
func agglomerate(items []*types.Memory, threshold float64) [][]*types.Memory {
	n := len(items)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return [][]*types.Memory{{items[0]}}
	}

	// Pairwise item distances, computed once.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := cosineDistance(items[i].Embedding, items[j].Embedding)
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	members := make([][]int, n)
	active := make([]bool, n)
	sums := make([][]float64, n) // sums[a][b] = sum of item distances across clusters a and b
	for i := 0; i < n; i++ {
		members[i] = []int{i}
		active[i] = true
		sums[i] = make([]float64, n)
		copy(sums[i], dist[i])
	}

	for {
		bestA, bestB := -1, -1
		bestDist := 0.0
		for a := 0; a < n; a++ {
			if !active[a] {
				continue
			}
			for b := a + 1; b < n; b++ {
				if !active[b] {
					continue
				}
				avg := sums[a][b] / float64(len(members[a])*len(members[b]))
				// Strict less-than keeps the first (lowest-hash) pair on ties.
				if bestA == -1 || avg < bestDist {
					bestA, bestB, bestDist = a, b, avg
				}
			}
		}
		if bestA == -1 || bestDist >= threshold {
			break
		}

		// Merge bestB into bestA.
		members[bestA] = append(members[bestA], members[bestB]...)
		sort.Ints(members[bestA])
		active[bestB] = false
		for c := 0; c < n; c++ {
			if !active[c] || c == bestA {
				continue
			}
			sums[bestA][c] += sums[bestB][c]
			sums[c][bestA] = sums[bestA][c]
		}
	}

	var clusters [][]*types.Memory
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		cluster := make([]*types.Memory, len(members[i]))
		for k, idx := range members[i] {
			cluster[k] = items[idx]
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}
