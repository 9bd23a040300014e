// Package distance provides the embedding metrics used for matching.
// Smaller values always mean more similar faces.
package distance

import (
	"fmt"
	"math"
	"strings"
)

// Metric names a distance function.
type Metric string

const (
	// Euclidean is the L2 distance used by dlib-style 128-d encoders.
	Euclidean Metric = "euclidean"
	// Cosine is 1 - cosine similarity, used with Facenet-style encoders.
	Cosine Metric = "cosine"
)

// Func computes the distance between two embeddings of equal length.
type Func func(a, b []float64) float64

// ParseMetric resolves a configuration value to a Metric.
func ParseMetric(name string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(name))) {
	case Euclidean, "":
		return Euclidean, nil
	case Cosine:
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric: %s (supported: %s, %s)", name, Euclidean, Cosine)
	}
}

// Func returns the distance function for the metric.
func (m Metric) Func() Func {
	if m == Cosine {
		return CosineDistance
	}
	return EuclideanDistance
}

// EuclideanDistance returns the L2 distance. Embeddings of different length
// are incomparable and yield +Inf so they can never pass a tolerance check.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// CosineSimilarity calculates the cosine similarity between two embedding vectors.
// Returns a value between -1.0 (opposite) and 1.0 (identical).
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, norm1, norm2 float64
	for i := range a {
		dotProduct += a[i] * b[i]
		norm1 += a[i] * a[i]
		norm2 += b[i] * b[i]
	}

	if norm1 == 0 || norm2 == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2))
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return 1 - CosineSimilarity(a, b)
}

// Normalize scales an embedding to unit length.
func Normalize(embedding []float64) []float64 {
	if len(embedding) == 0 {
		return embedding
	}

	var norm float64
	for _, v := range embedding {
		norm += v * v
	}

	if norm == 0 {
		return embedding
	}

	norm = math.Sqrt(norm)
	normalized := make([]float64, len(embedding))
	for i, v := range embedding {
		normalized[i] = v / norm
	}

	return normalized
}
