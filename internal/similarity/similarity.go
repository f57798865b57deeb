// Package similarity implements the cosine ranking used by the vector store's
// full-scan search path and by local result validation.
package similarity

import (
	"math"
	"sort"
)

// Match is a ranked candidate, identified by its position in the input
type Match struct {
	Index      int
	Similarity float64
}

// CosineSimilarity computes the cosine similarity between two vectors.
// It returns 0 when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopK scores every candidate against query, drops those below threshold and
// returns at most k matches by descending similarity. Equal scores keep their
// input order.
func TopK(query []float32, candidates [][]float32, k int, threshold float64) []Match {
	if k <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		s := CosineSimilarity(query, c)
		if s < threshold {
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: s})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Magnitude returns the L2 norm of v
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector is returned as a
// copy unchanged.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	m := Magnitude(v)
	if m == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / m)
	}
	return out
}
