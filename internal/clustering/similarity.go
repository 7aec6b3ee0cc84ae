package clustering

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty, zero-length or mismatched.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	dot := floats.Dot(a, b)
	normA := math.Sqrt(floats.Dot(a, a))
	normB := math.Sqrt(floats.Dot(b, b))
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}

// mergeCentroids folds two weighted centroids into one.
func mergeCentroids(a []float64, wa int, b []float64, wb int) []float64 {
	if len(a) != len(b) || wa+wb == 0 {
		return a
	}

	out := make([]float64, len(a))
	total := float64(wa + wb)
	for i := range a {
		out[i] = (a[i]*float64(wa) + b[i]*float64(wb)) / total
	}
	return out
}
