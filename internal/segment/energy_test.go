package segment

import (
	"math"
	"testing"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// numericGradient estimates dF/du by central differences.
func numericGradient(u *field.Field, f func(*field.Field) float64) *field.Field {
	const h = 1e-6
	grad := field.New(u.Height(), u.Width())
	shifted := u.Clone()
	for i := range shifted.Data() {
		orig := shifted.Data()[i]
		shifted.Data()[i] = orig + h
		plus := f(shifted)
		shifted.Data()[i] = orig - h
		minus := f(shifted)
		shifted.Data()[i] = orig
		grad.Data()[i] = (plus - minus) / (2 * h)
	}
	return grad
}

// assertGradientsClose compares analytic and numeric gradients.
func assertGradientsClose(t *testing.T, analytic, numeric *field.Field) {
	t.Helper()
	for i, want := range numeric.Data() {
		got := analytic.Data()[i]
		if math.Abs(got-want) > 1e-5*math.Max(1, math.Abs(want)) {
			t.Errorf("pixel %d: analytic %g, numeric %g", i, got, want)
		}
	}
}

// wavyField returns a deterministic, non-trivial field.
func wavyField(height, width int) *field.Field {
	f := field.New(height, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Set(y, x, 0.5+0.8*math.Sin(1.3*float64(x)+0.7*float64(y))*math.Cos(0.4*float64(x*y)))
		}
	}
	return f
}

func TestDataFitting_Membership(t *testing.T) {
	d := DataFitting{Threshold: 0.5, Width: 0.1}
	if got := d.Membership(0.5); got != 0.5 {
		t.Errorf("Membership at threshold: got %g, want 0.5", got)
	}
	if d.Membership(5) < 0.99 || d.Membership(-5) > 0.01 {
		t.Errorf("Membership far from threshold: got %g and %g", d.Membership(5), d.Membership(-5))
	}
}

func TestDataFitting_GradientMatchesFiniteDifferences(t *testing.T) {
	img := mustImage(t, [][]float64{
		{0.1, 0.9, 0.3, 0.6},
		{0.7, 0.2, 0.8, 0.0},
		{0.0, 1.0, 0.5, 0.4},
	})
	u := wavyField(3, 4)
	means := RegionMeans{Inside: 0.7, Outside: 0.2}
	d := DataFitting{Threshold: 0.5, Width: 0.1}

	analytic := field.New(3, 4)
	d.Gradient(u, img, means, analytic)
	numeric := numericGradient(u, func(f *field.Field) float64 { return d.Energy(f, img, means) })
	assertGradientsClose(t, analytic, numeric)
}

func TestTotalVariation_GradientMatchesFiniteDifferences(t *testing.T) {
	u := wavyField(5, 6)
	tv := TotalVariation{Beta: 0.1}

	_, analytic := tv.Penalty(u)
	numeric := numericGradient(u, func(f *field.Field) float64 {
		v, _ := tv.Penalty(f)
		return v
	})
	assertGradientsClose(t, analytic, numeric)
}

func TestTotalVariation_ConstantField(t *testing.T) {
	tv := TotalVariation{Beta: 0.1}
	value, grad := tv.Penalty(field.Constant(4, 4, 3.7))

	if math.Abs(value-16*0.1) > 1e-12 {
		t.Errorf("penalty: got %g, want %g", value, 1.6)
	}
	for i, g := range grad.Data() {
		if g != 0 {
			t.Errorf("pixel %d: gradient %g, want 0", i, g)
		}
	}
}

func TestTotalVariation_LargeValues(t *testing.T) {
	u := wavyField(4, 4)
	for i := range u.Data() {
		u.Data()[i] *= 1e6
	}
	value, grad := TotalVariation{}.Penalty(u)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		t.Fatalf("penalty not finite: %g", value)
	}
	if _, v, bad := grad.FirstNonFinite(); bad {
		t.Errorf("gradient has non-finite value %g", v)
	}
}
