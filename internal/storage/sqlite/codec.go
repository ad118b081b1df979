package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeEmbedding converts a float64 slice to a binary representation:
// 8 bytes per element, little-endian.
func serializeEmbedding(embedding []float64) []byte {
	if len(embedding) == 0 {
		return nil
	}

	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding converts a binary representation back to a float64
// slice, validating the declared dimension against the blob size.
func deserializeEmbedding(buf []byte, dimension int) ([]float64, error) {
	if len(buf) == 0 || dimension == 0 {
		return nil, nil
	}

	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("embedding blob is %d bytes, expected %d for dimension %d",
			len(buf), dimension*8, dimension)
	}

	embedding := make([]float64, dimension)
	for i := range embedding {
		bits := binary.LittleEndian.Uint64(buf[i*8:])
		embedding[i] = math.Float64frombits(bits)
	}
	return embedding, nil
}
