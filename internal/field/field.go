package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Field is a real-valued scalar function sampled on the image grid.
type Field struct {
	height int
	width  int
	data   []float64
}

// New returns a zero-valued field of the given shape.
func New(height, width int) *Field {
	if height < 0 || width < 0 {
		panic(fmt.Sprintf("field: negative shape %dx%d", height, width))
	}
	return &Field{height: height, width: width, data: make([]float64, height*width)}
}

// FromSlice wraps a copy of data as a height x width field.
func FromSlice(height, width int, data []float64) (*Field, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid field shape %dx%d", height, width)
	}
	if len(data) != height*width {
		return nil, fmt.Errorf("field data has %d values, want %d for shape %dx%d",
			len(data), height*width, height, width)
	}
	f := New(height, width)
	copy(f.data, data)
	return f, nil
}

// FromRows builds a field from a slice of equally long rows.
func FromRows(rows [][]float64) (*Field, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("field rows must be non-empty")
	}
	height, width := len(rows), len(rows[0])
	f := New(height, width)
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, want %d", y, len(row), width)
		}
		copy(f.data[y*width:(y+1)*width], row)
	}
	return f, nil
}

// Height returns the number of rows.
func (f *Field) Height() int { return f.height }

// Width returns the number of columns.
func (f *Field) Width() int { return f.width }

// Len returns the number of samples.
func (f *Field) Len() int { return len(f.data) }

// At returns the value at row y, column x.
func (f *Field) At(y, x int) float64 { return f.data[y*f.width+x] }

// Set stores v at row y, column x.
func (f *Field) Set(y, x int, v float64) { f.data[y*f.width+x] = v }

// Data returns the row-major backing slice. Writes through it mutate the field.
func (f *Field) Data() []float64 { return f.data }

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	c := New(f.height, f.width)
	copy(c.data, f.data)
	return c
}

// SameShape reports whether f and a grid of the given shape line up pixel for pixel.
func (f *Field) SameShape(height, width int) bool {
	return f.height == height && f.width == width
}

// Equal reports whether both fields have the same shape and bitwise-equal values.
func (f *Field) Equal(o *Field) bool {
	if o == nil || f.height != o.height || f.width != o.width {
		return false
	}
	for i, v := range f.data {
		if v != o.data[i] && !(math.IsNaN(v) && math.IsNaN(o.data[i])) {
			return false
		}
	}
	return true
}

// FirstNonFinite returns the index and value of the first NaN or ±Inf sample.
func (f *Field) FirstNonFinite() (int, float64, bool) {
	return firstNonFinite(f.data)
}

// Rows returns a copy of the field as a slice of rows.
func (f *Field) Rows() [][]float64 {
	rows := make([][]float64, f.height)
	for y := range rows {
		rows[y] = make([]float64, f.width)
		copy(rows[y], f.data[y*f.width:(y+1)*f.width])
	}
	return rows
}

// Dense returns a gonum matrix view sharing the field's storage.
func (f *Field) Dense() *mat.Dense {
	return mat.NewDense(f.height, f.width, f.data)
}

// MinMax returns the smallest and largest values of the field.
func (f *Field) MinMax() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range f.data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func firstNonFinite(data []float64) (int, float64, bool) {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i, v, true
		}
	}
	return -1, 0, false
}
