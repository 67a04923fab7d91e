package imaging

import (
	"math"
	"testing"

	"github.com/ironsheep/segment-mcp/internal/field"
)

func TestIntensitySeed_NoBlurCopiesImage(t *testing.T) {
	img, err := field.ImageFromRows([][]float64{{0, 0.25}, {0.5, 1}})
	if err != nil {
		t.Fatalf("ImageFromRows failed: %v", err)
	}
	u := IntensitySeed(img, 0)
	if !u.Equal(img.AsField()) {
		t.Errorf("seed without blur should equal the image: %v", u.Rows())
	}
	u.Set(0, 0, 9)
	if img.At(0, 0) != 0 {
		t.Error("seed shares storage with the image")
	}
}

func TestIntensitySeed_BlurSmoothsEdges(t *testing.T) {
	rows := make([][]float64, 8)
	for y := range rows {
		rows[y] = make([]float64, 8)
		for x := 0; x < 4; x++ {
			rows[y][x] = 1
		}
	}
	img, err := field.ImageFromRows(rows)
	if err != nil {
		t.Fatalf("ImageFromRows failed: %v", err)
	}

	u := IntensitySeed(img, 1.5)
	if u.Height() != 8 || u.Width() != 8 {
		t.Fatalf("size: got %dx%d, want 8x8", u.Height(), u.Width())
	}
	if !(u.At(4, 0) > u.At(4, 3) && u.At(4, 3) > u.At(4, 4) && u.At(4, 4) > u.At(4, 7)) {
		t.Errorf("expected a monotone ramp across the edge: %v", u.Rows()[4])
	}
	if a, b := u.At(4, 3), u.At(4, 4); a <= 0 || a >= 1 || b <= 0 || b >= 1 {
		t.Errorf("edge pixels should be blended: %g %g", a, b)
	}
	lo, hi := u.MinMax()
	if lo < 0 || hi > 1 || math.IsNaN(lo) {
		t.Errorf("seed outside [0,1]: %g..%g", lo, hi)
	}
}
