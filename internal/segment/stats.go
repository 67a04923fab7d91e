package segment

import (
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// RegionMeans holds the representative intensities of the two regions.
type RegionMeans struct {
	Inside  float64 `json:"c_in"`
	Outside float64 `json:"c_out"`

	// InsideEmpty and OutsideEmpty report that no pixel fell in the region and
	// the corresponding mean is the whole-image mean.
	InsideEmpty  bool `json:"inside_empty,omitempty"`
	OutsideEmpty bool `json:"outside_empty,omitempty"`

	InsideCount  int `json:"inside_count"`
	OutsideCount int `json:"outside_count"`
}

// AnyEmpty reports whether the fallback was used for either region.
func (m RegionMeans) AnyEmpty() bool { return m.InsideEmpty || m.OutsideEmpty }

// ComputeRegionMeans returns the mean intensity of img over {u > threshold}
// and over {u <= threshold}.
//
// The partition is strict: a pixel with u exactly equal to threshold is
// outside. An empty region takes the whole-image mean so NaN never reaches the
// energy; the Empty flags record when that happened.
func ComputeRegionMeans(u *field.Field, img *field.Image, threshold float64) (RegionMeans, error) {
	const op = "region means"
	if err := checkShape(op, u, img); err != nil {
		return RegionMeans{}, err
	}
	if err := checkThreshold(op, threshold); err != nil {
		return RegionMeans{}, err
	}

	pixels := img.Pixels()
	inside := make([]float64, len(pixels))
	outside := make([]float64, len(pixels))
	var m RegionMeans
	for i, v := range u.Data() {
		if v > threshold {
			inside[i] = 1
			m.InsideCount++
		} else {
			outside[i] = 1
			m.OutsideCount++
		}
	}

	if m.InsideCount == 0 {
		m.Inside, m.InsideEmpty = img.Mean(), true
	} else {
		m.Inside = stat.Mean(pixels, inside)
	}
	if m.OutsideCount == 0 {
		m.Outside, m.OutsideEmpty = img.Mean(), true
	} else {
		m.Outside = stat.Mean(pixels, outside)
	}
	return m, nil
}

func checkShape(op string, u *field.Field, img *field.Image) error {
	if u == nil || img == nil {
		return preconditionError(op, "field and image are required")
	}
	if !img.Matches(u) {
		return preconditionError(op, "field shape %dx%d does not match image shape %dx%d",
			u.Height(), u.Width(), img.Height(), img.Width())
	}
	return nil
}

func checkThreshold(op string, threshold float64) error {
	if !(threshold >= 0 && threshold <= 1) {
		return preconditionError(op, "threshold %g outside [0,1]", threshold)
	}
	return nil
}
