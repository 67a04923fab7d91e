package field

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Image is an immutable grid of intensities in [0,1].
//
// Multi-channel sources are flattened to a single luminance channel by the
// imaging package before they reach this type.
type Image struct {
	height int
	width  int
	data   []float64
	mean   float64
}

// NewImage copies data into a new Image after checking every value lies in [0,1].
func NewImage(height, width int, data []float64) (*Image, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid image shape %dx%d", height, width)
	}
	if len(data) != height*width {
		return nil, fmt.Errorf("image data has %d values, want %d for shape %dx%d",
			len(data), height*width, height, width)
	}
	for i, v := range data {
		if !(v >= 0 && v <= 1) {
			return nil, fmt.Errorf("intensity %g at (%d,%d) outside [0,1]", v, i/width, i%width)
		}
	}
	pixels := make([]float64, len(data))
	copy(pixels, data)
	return &Image{
		height: height,
		width:  width,
		data:   pixels,
		mean:   stat.Mean(pixels, nil),
	}, nil
}

// ImageFromRows builds an image from equally long rows of intensities.
func ImageFromRows(rows [][]float64) (*Image, error) {
	f, err := FromRows(rows)
	if err != nil {
		return nil, err
	}
	return NewImage(f.height, f.width, f.data)
}

// Height returns the number of rows.
func (im *Image) Height() int { return im.height }

// Width returns the number of columns.
func (im *Image) Width() int { return im.width }

// At returns the intensity at row y, column x.
func (im *Image) At(y, x int) float64 { return im.data[y*im.width+x] }

// Pixels returns the row-major intensities. The slice is shared and must not be modified.
func (im *Image) Pixels() []float64 { return im.data }

// Mean returns the mean intensity over the whole image.
func (im *Image) Mean() float64 { return im.mean }

// Matches reports whether f has the same spatial shape as the image.
func (im *Image) Matches(f *Field) bool {
	return f != nil && f.SameShape(im.height, im.width)
}

// AsField returns a copy of the intensities as a Field, e.g. to seed u.
func (im *Image) AsField() *Field {
	f := New(im.height, im.width)
	copy(f.data, im.data)
	return f
}
