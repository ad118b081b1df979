package engine

import "math"

// cosineSimilarity computes the cosine similarity between two embedding
// vectors. Returns 0 for mismatched dimensions, empty vectors, or zero
// vectors; callers that need to tell "no signal" from "orthogonal" must
// validate the embeddings first.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is the clustering metric: 1 - cosine similarity, so 0 means
// identical direction and values near 2 mean opposite.
func cosineDistance(a, b []float64) float64 {
	return 1 - cosineSimilarity(a, b)
}

// euclideanDistance computes the straight-line distance between two vectors.
// Mismatched or empty vectors are infinitely far apart.
func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// centroid computes the element-wise mean of the given vectors. The first
// non-empty vector fixes the dimension; vectors of any other dimension are
// skipped. Returns nil when no usable vector exists.
func centroid(vectors [][]float64) []float64 {
	var dim int
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil
	}

	mean := make([]float64, dim)
	count := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			mean[i] += x
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range mean {
		mean[i] /= float64(count)
	}
	return mean
}

// hasEmbedding reports whether a vector is usable for similarity work.
func hasEmbedding(v []float64) bool {
	return len(v) > 0
}
