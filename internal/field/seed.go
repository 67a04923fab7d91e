package field

import "math/rand/v2"

// Random returns a field of independent uniform samples in [0,1).
// A nil rng uses the package-level generator.
func Random(height, width int, rng *rand.Rand) *Field {
	f := New(height, width)
	for i := range f.data {
		if rng != nil {
			f.data[i] = rng.Float64()
		} else {
			f.data[i] = rand.Float64()
		}
	}
	return f
}

// Constant returns a field filled with v.
func Constant(height, width int, v float64) *Field {
	f := New(height, width)
	for i := range f.data {
		f.data[i] = v
	}
	return f
}

// NewRand returns a generator whose stream is fixed by seed. Seed 0 returns
// nil so Random falls back to the package-level generator.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
