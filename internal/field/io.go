package field

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// WriteTo writes the field in gonum's binary matrix format.
func (f *Field) WriteTo(w io.Writer) (int64, error) {
	n, err := f.Dense().MarshalBinaryTo(w)
	if err != nil {
		return int64(n), fmt.Errorf("failed to encode field: %w", err)
	}
	return int64(n), nil
}

// ReadFrom decodes a field previously written with WriteTo.
func ReadFrom(r io.Reader) (*Field, error) {
	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("failed to decode field: %w", err)
	}
	rows, cols := m.Dims()
	f := New(rows, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			f.data[y*cols+x] = m.At(y, x)
		}
	}
	return f, nil
}
