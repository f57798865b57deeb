package embedder

import (
	"fmt"
	"math"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/similarity"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// ValidateVector checks a vector before it is stored: it must have exactly
// dim components, all finite, with non-zero magnitude.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) != dim {
		return &types.ValidationError{
			Field:  "vector",
			Index:  -1,
			Reason: fmt.Sprintf("expected %d dimensions, got %d", dim, len(vec)),
		}
	}

	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &types.ValidationError{
				Field:  "vector",
				Index:  -1,
				Reason: fmt.Sprintf("component %d is not finite", i),
			}
		}
	}

	if similarity.Magnitude(vec) == 0 {
		return &types.ValidationError{Field: "vector", Index: -1, Reason: "zero magnitude"}
	}
	return nil
}
