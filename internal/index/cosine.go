package index

import (
	"math"

	"github.com/Veraticus/modality/internal/model"
)

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when either vector has zero magnitude or the dimensions differ.
func CosineSimilarity(a, b model.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// clamp rounding drift
	return math.Max(-1, math.Min(1, sim))
}
