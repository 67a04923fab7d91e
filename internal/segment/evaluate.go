package segment

import (
	"fmt"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// Jaccard returns |A ∩ B| / |A ∪ B| for two masks of the same shape.
// Two empty masks are identical and score 1.
func Jaccard(a, b *field.Mask) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("both masks are required")
	}
	if a.Height != b.Height || a.Width != b.Width {
		return 0, fmt.Errorf("mask shapes differ: %dx%d vs %dx%d", a.Height, a.Width, b.Height, b.Width)
	}
	var inter, union int
	for i, x := range a.Bits {
		y := b.Bits[i]
		if x && y {
			inter++
		}
		if x || y {
			union++
		}
	}
	if union == 0 {
		return 1, nil
	}
	return float64(inter) / float64(union), nil
}
