package segment

import (
	"fmt"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// Prior is a pre-trained scalar function of the field with an obtainable
// gradient. Its parameters are fixed at construction; Penalty must not mutate
// them, so one Prior may serve many sessions concurrently.
type Prior interface {
	Penalty(u *field.Field) (float64, *field.Field)
}

// PriorFunc adapts an ordinary function to the Prior interface.
type PriorFunc func(u *field.Field) (float64, *field.Field)

// Penalty calls f(u).
func (f PriorFunc) Penalty(u *field.Field) (float64, *field.Field) { return f(u) }

// ZeroPrior is the prior that assigns zero penalty to every field.
type ZeroPrior struct{}

// Penalty implements Prior.
func (ZeroPrior) Penalty(u *field.Field) (float64, *field.Field) {
	return 0, field.New(u.Height(), u.Width())
}

// ShapeConstrained is implemented by regularizers that only accept fields of
// a particular shape. Sessions check it once at construction.
type ShapeConstrained interface {
	CheckShape(height, width int) error
}

// inputShaper is implemented by priors trained for a fixed input size.
type inputShaper interface {
	InputShape() (height, width int)
}

// Learned is the Regularizer backed by a learned prior.
type Learned struct {
	name  string
	prior Prior
}

// NewLearned wraps prior as a Regularizer.
func NewLearned(name string, prior Prior) *Learned {
	if name == "" {
		name = "learned"
	}
	return &Learned{name: name, prior: prior}
}

// Name implements Regularizer.
func (l *Learned) Name() string { return l.name }

// Penalty implements Regularizer. A prior that returns a nil gradient is
// treated as having zero gradient.
func (l *Learned) Penalty(u *field.Field) (float64, *field.Field) {
	value, grad := l.prior.Penalty(u)
	if grad == nil {
		grad = field.New(u.Height(), u.Width())
	}
	return value, grad
}

// CheckShape implements ShapeConstrained using the prior's declared input
// shape, if it has one. A zero dimension accepts any size.
func (l *Learned) CheckShape(height, width int) error {
	s, ok := l.prior.(inputShaper)
	if !ok {
		return nil
	}
	h, w := s.InputShape()
	if (h != 0 && h != height) || (w != 0 && w != width) {
		return preconditionError("learned regularizer",
			"%s expects %dx%d fields, got %dx%d", l.name, h, w, height, width)
	}
	return nil
}

func (l *Learned) String() string {
	return fmt.Sprintf("Learned(%s)", l.name)
}
