package engine

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// clusterHashes flattens clusters into hash lists for comparison.
func clusterHashes(clusters [][]*types.Memory) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		hashes := make([]string, len(c))
		for j, m := range c {
			hashes[j] = m.Hash
		}
		out[i] = hashes
	}
	return out
}

func TestClusterMemories_TwoTightGroups(t *testing.T) {
	// Two bundles of near-identical directions, far from each other.
	items := []*types.Memory{
		{Hash: "a1", Embedding: []float64{1, 0}},
		{Hash: "a2", Embedding: []float64{0.99, 0.01}},
		{Hash: "b1", Embedding: []float64{0, 1}},
		{Hash: "b2", Embedding: []float64{0.01, 0.99}},
	}

	clusters := ClusterMemories(items, 0.3)
	got := clusterHashes(clusters)
	want := [][]string{{"a1", "a2"}, {"b1", "b2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}

func TestClusterMemories_AllDistancesAboveThreshold(t *testing.T) {
	items := []*types.Memory{
		{Hash: "a", Embedding: []float64{1, 0, 0}},
		{Hash: "b", Embedding: []float64{0, 1, 0}},
		{Hash: "c", Embedding: []float64{0, 0, 1}},
	}

	clusters := ClusterMemories(items, 0.1)
	if len(clusters) != 3 {
		t.Fatalf("got %d clusters, want 3 singletons", len(clusters))
	}
	for _, c := range clusters {
		if len(c) != 1 {
			t.Errorf("expected singleton, got %d members", len(c))
		}
	}
}

func TestClusterMemories_FewerThanTwoItems(t *testing.T) {
	if clusters := ClusterMemories(nil, 0.5); clusters != nil {
		t.Errorf("empty input should produce no clusters, got %v", clusters)
	}

	one := []*types.Memory{{Hash: "only", Embedding: []float64{1, 0}}}
	clusters := ClusterMemories(one, 0.5)
	if len(clusters) != 1 || len(clusters[0]) != 1 || clusters[0][0].Hash != "only" {
		t.Errorf("single item should be its own cluster, got %v", clusterHashes(clusters))
	}
}

func TestClusterMemories_ThresholdIsExclusive(t *testing.T) {
	// Orthogonal vectors have cosine distance exactly 1.0. A threshold of
	// 1.0 must not merge them.
	items := []*types.Memory{
		{Hash: "a", Embedding: []float64{1, 0}},
		{Hash: "b", Embedding: []float64{0, 1}},
	}

	clusters := ClusterMemories(items, 1.0)
	if len(clusters) != 2 {
		t.Errorf("distance equal to the threshold should not merge, got %d clusters", len(clusters))
	}
}

func TestClusterMemories_MissingEmbeddingsBecomeSingletons(t *testing.T) {
	items := []*types.Memory{
		{Hash: "a1", Embedding: []float64{1, 0}},
		{Hash: "a2", Embedding: []float64{0.99, 0.01}},
		{Hash: "blind"},
	}

	clusters := ClusterMemories(items, 0.3)
	got := clusterHashes(clusters)
	want := [][]string{{"a1", "a2"}, {"blind"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}

func TestClusterMemories_DeterministicAcrossInputOrder(t *testing.T) {
	build := func() []*types.Memory {
		var items []*types.Memory
		for i := 0; i < 12; i++ {
			angle := float64(i) * math.Pi / 24
			items = append(items, &types.Memory{
				Hash:      fmt.Sprintf("m%02d", i),
				Embedding: []float64{math.Cos(angle), math.Sin(angle)},
			})
		}
		return items
	}

	forward := build()
	reversed := build()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	a := clusterHashes(ClusterMemories(forward, 0.05))
	b := clusterHashes(ClusterMemories(reversed, 0.05))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("input order changed the clustering:\n%v\n%v", a, b)
	}
}

func TestClusterMemories_AverageLinkageChains(t *testing.T) {
	// A chain of close neighbors: average linkage should pull the whole
	// chain together under a generous threshold.
	var items []*types.Memory
	for i := 0; i < 5; i++ {
		angle := float64(i) * 0.05
		items = append(items, &types.Memory{
			Hash:      fmt.Sprintf("chain%d", i),
			Embedding: []float64{math.Cos(angle), math.Sin(angle)},
		})
	}

	clusters := ClusterMemories(items, 0.15)
	if len(clusters) != 1 {
		t.Fatalf("chain should merge into one cluster, got %d", len(clusters))
	}
	if len(clusters[0]) != 5 {
		t.Errorf("cluster has %d members, want 5", len(clusters[0]))
	}
}
