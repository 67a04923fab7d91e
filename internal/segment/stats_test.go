package segment

import (
	"math"
	"testing"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// mustImage builds an image from rows and fails the test on error.
func mustImage(t *testing.T, rows [][]float64) *field.Image {
	t.Helper()
	img, err := field.ImageFromRows(rows)
	if err != nil {
		t.Fatalf("failed to build image: %v", err)
	}
	return img
}

// mustField builds a field from rows and fails the test on error.
func mustField(t *testing.T, rows [][]float64) *field.Field {
	t.Helper()
	f, err := field.FromRows(rows)
	if err != nil {
		t.Fatalf("failed to build field: %v", err)
	}
	return f
}

// bruteForceMeans is the reference partition: plain loops, no fallback.
func bruteForceMeans(u *field.Field, img *field.Image, threshold float64) (float64, float64) {
	var sumIn, sumOut float64
	var nIn, nOut int
	for y := 0; y < u.Height(); y++ {
		for x := 0; x < u.Width(); x++ {
			if u.At(y, x) > threshold {
				sumIn += img.At(y, x)
				nIn++
			} else {
				sumOut += img.At(y, x)
				nOut++
			}
		}
	}
	return sumIn / float64(nIn), sumOut / float64(nOut)
}

func TestComputeRegionMeans_MatchesBruteForce(t *testing.T) {
	img := mustImage(t, [][]float64{
		{0.1, 0.9, 0.3},
		{0.7, 0.2, 0.8},
		{0.0, 1.0, 0.5},
	})

	tests := []struct {
		name      string
		u         [][]float64
		threshold float64
	}{
		{"diagonal", [][]float64{{0.9, 0.1, 0.1}, {0.1, 0.9, 0.1}, {0.1, 0.1, 0.9}}, 0.5},
		{"unclipped values", [][]float64{{-3, 7, -1}, {12, -0.5, 2}, {-8, 4, 0}}, 0.3},
		{"low threshold", [][]float64{{0.05, 0.2, 0.01}, {0.3, 0.02, 0.5}, {0.0, 0.6, 0.04}}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := mustField(t, tt.u)
			got, err := ComputeRegionMeans(u, img, tt.threshold)
			if err != nil {
				t.Fatalf("ComputeRegionMeans failed: %v", err)
			}
			wantIn, wantOut := bruteForceMeans(u, img, tt.threshold)
			if math.Abs(got.Inside-wantIn) > 1e-12 || math.Abs(got.Outside-wantOut) > 1e-12 {
				t.Errorf("means: got (%g, %g), want (%g, %g)", got.Inside, got.Outside, wantIn, wantOut)
			}
			for _, c := range []float64{got.Inside, got.Outside} {
				if c < 0 || c > 1 {
					t.Errorf("mean %g outside [0,1]", c)
				}
			}
			if got.AnyEmpty() {
				t.Error("no region should be empty")
			}
			if got.InsideCount+got.OutsideCount != 9 {
				t.Errorf("counts: got %d+%d, want 9 pixels", got.InsideCount, got.OutsideCount)
			}
		})
	}
}

func TestComputeRegionMeans_TieIsOutside(t *testing.T) {
	img := mustImage(t, [][]float64{{1, 0}, {0.2, 0.4}})
	u := mustField(t, [][]float64{{0.5, 0.9}, {0.1, 0.1}})

	m, err := ComputeRegionMeans(u, img, 0.5)
	if err != nil {
		t.Fatalf("ComputeRegionMeans failed: %v", err)
	}
	// Only (0,1) is strictly above 0.5; the pixel at exactly 0.5 is outside.
	if m.InsideCount != 1 || m.Inside != 0 {
		t.Errorf("inside: got count=%d mean=%g, want count=1 mean=0", m.InsideCount, m.Inside)
	}
	wantOut := (1 + 0.2 + 0.4) / 3
	if math.Abs(m.Outside-wantOut) > 1e-12 {
		t.Errorf("outside mean: got %g, want %g", m.Outside, wantOut)
	}
}

func TestComputeRegionMeans_EmptyRegionFallback(t *testing.T) {
	img := mustImage(t, [][]float64{{0.2, 0.4}, {0.6, 1.0}})
	globalMean := 0.55

	t.Run("all inside", func(t *testing.T) {
		m, err := ComputeRegionMeans(field.Constant(2, 2, 0.9), img, 0.5)
		if err != nil {
			t.Fatalf("ComputeRegionMeans failed: %v", err)
		}
		if math.IsNaN(m.Outside) || math.Abs(m.Outside-globalMean) > 1e-12 {
			t.Errorf("c_out: got %g, want whole-image mean %g", m.Outside, globalMean)
		}
		if !m.OutsideEmpty || m.InsideEmpty {
			t.Errorf("flags: got inside=%v outside=%v", m.InsideEmpty, m.OutsideEmpty)
		}
	})

	t.Run("all outside", func(t *testing.T) {
		m, err := ComputeRegionMeans(field.Constant(2, 2, 0.5), img, 0.5)
		if err != nil {
			t.Fatalf("ComputeRegionMeans failed: %v", err)
		}
		if math.IsNaN(m.Inside) || math.Abs(m.Inside-globalMean) > 1e-12 {
			t.Errorf("c_in: got %g, want whole-image mean %g", m.Inside, globalMean)
		}
		if !m.InsideEmpty {
			t.Error("InsideEmpty should be set")
		}
	})
}

func TestComputeRegionMeans_Preconditions(t *testing.T) {
	img := mustImage(t, [][]float64{{0.2, 0.4}, {0.6, 1.0}})

	tests := []struct {
		name      string
		u         *field.Field
		threshold float64
	}{
		{"shape mismatch", field.New(3, 2), 0.5},
		{"nil field", nil, 0.5},
		{"threshold above one", field.New(2, 2), 1.5},
		{"negative threshold", field.New(2, 2), -0.1},
		{"nan threshold", field.New(2, 2), math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeRegionMeans(tt.u, img, tt.threshold)
			if !IsKind(err, KindPrecondition) {
				t.Errorf("got %v, want precondition error", err)
			}
		})
	}
}
