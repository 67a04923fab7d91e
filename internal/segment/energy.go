package segment

import (
	"math"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// DefaultHeavisideWidth is the default smoothing width of the membership function.
const DefaultHeavisideWidth = 0.1

// DataFitting is the region data term of the energy:
//
//	E(u) = Σ H(u-t)·(I-c_in)² + (1-H(u-t))·(I-c_out)²
//
// where H(x) = 1/2 + atan(x/η)/π is a smoothed indicator of the inside region.
// It carries no regularisation; that is the Regularizer's job.
type DataFitting struct {
	// Threshold is the level t that separates the regions.
	Threshold float64
	// Width is η. Smaller values sharpen the membership and stiffen the gradient.
	Width float64
	// Workers bounds row-block parallelism; <= 0 means runtime.NumCPU().
	Workers int
}

// Membership returns the smoothed inside weight H(x) of a field value
// relative to the threshold. It is 1/2 exactly at the threshold.
func (d DataFitting) Membership(v float64) float64 {
	return 0.5 + math.Atan((v-d.Threshold)/d.width())/math.Pi
}

// membershipSlope returns H'(x).
func (d DataFitting) membershipSlope(v float64) float64 {
	eta := d.width()
	x := v - d.Threshold
	return eta / (math.Pi * (eta*eta + x*x))
}

func (d DataFitting) width() float64 {
	if d.Width > 0 {
		return d.Width
	}
	return DefaultHeavisideWidth
}

// Energy returns the data term for u. u and img must share a shape.
func (d DataFitting) Energy(u *field.Field, img *field.Image, means RegionMeans) float64 {
	pixels := img.Pixels()
	var total float64
	for i, v := range u.Data() {
		h := d.Membership(v)
		in := pixels[i] - means.Inside
		out := pixels[i] - means.Outside
		total += h*in*in + (1-h)*out*out
	}
	return total
}

// Gradient writes dE/du into grad, which must have u's shape.
func (d DataFitting) Gradient(u *field.Field, img *field.Image, means RegionMeans, grad *field.Field) {
	width := u.Width()
	pixels := img.Pixels()
	values := u.Data()
	out := grad.Data()
	field.ForRows(u.Height(), d.Workers, func(y0, y1 int) {
		for i := y0 * width; i < y1*width; i++ {
			in := pixels[i] - means.Inside
			ext := pixels[i] - means.Outside
			out[i] = d.membershipSlope(values[i]) * (in*in - ext*ext)
		}
	})
}
