package vecstore

import (
	"context"
	"fmt"
	"math"
)

// Vector is one stored embedding.
type Vector struct {
	ID     string
	Values []float32
}

// Match pairs a stored vector ID with a query score. For similarity queries
// the score is cosine similarity remapped to [0,1] (higher is better); for
// distance queries it is L2 distance (lower is better).
type Match struct {
	ID    string
	Score float64
}

// Store answers similarity queries over one embedding per concept. Namespaces
// partition vectors by target language. Read operations never mutate state.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// TopKSimilar scans candidates with similarity >= threshold, sorted
	// descending, truncated to k. Ties keep insertion order. A non-nil
	// onlyIDs restricts the candidate pool.
	TopKSimilar(ctx context.Context, namespace string, q []float32, k int, threshold float64, onlyIDs []string) ([]Match, error)
	// NearestByDistance is the Euclidean variant: ascending, no threshold.
	NearestByDistance(ctx context.Context, namespace string, q []float32, k int, onlyIDs []string) ([]Match, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// DimensionError reports a vector whose length disagrees with the store's
// configured dimension. The failing upsert is rejected; stored vectors are
// unaffected.
type DimensionError struct {
	ID   string
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", e.ID, e.Want, e.Got)
}

// CosineSimilarity computes (dot(a,b)/(|a||b|) + 1) / 2, remapping cosine
// from [-1,1] onto [0,1]. Either vector having zero norm yields 0.0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

// EuclideanDistance computes the L2 distance between two vectors. Mismatched
// lengths yield +Inf so such pairs sort last.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
