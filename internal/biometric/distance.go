package biometric

import "math"

// CosineDistance returns 1 - cosine similarity, in [0,2].
// Mismatched or zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}

// ConfidenceFromDistance maps a normalized distance to a [0,1] confidence.
func ConfidenceFromDistance(d float64) float64 {
	return math.Max(0, 1-d)
}
