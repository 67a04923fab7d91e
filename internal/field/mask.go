package field

// Mask is a binary segmentation: Bits[y*Width+x] is true for foreground pixels.
type Mask struct {
	Height int
	Width  int
	Bits   []bool
}

// Threshold marks every pixel whose value is strictly greater than t.
// A pixel exactly at t is background.
func Threshold(f *Field, t float64) *Mask {
	m := &Mask{Height: f.height, Width: f.width, Bits: make([]bool, len(f.data))}
	for i, v := range f.data {
		m.Bits[i] = v > t
	}
	return m
}

// At reports whether pixel (y, x) is foreground.
func (m *Mask) At(y, x int) bool { return m.Bits[y*m.Width+x] }

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Equal reports whether two masks have the same shape and bits.
func (m *Mask) Equal(o *Mask) bool {
	if o == nil || m.Height != o.Height || m.Width != o.Width {
		return false
	}
	for i, b := range m.Bits {
		if b != o.Bits[i] {
			return false
		}
	}
	return true
}
