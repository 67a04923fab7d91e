package segment

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// Energy is the decomposed objective evaluated at one field.
type Energy struct {
	Data    float64 `json:"data"`
	Penalty float64 `json:"penalty"`
	Lambda  float64 `json:"lambda"`
	Total   float64 `json:"total"`
}

// StepReport describes one descent step.
type StepReport struct {
	// Energy is evaluated at the field before the step.
	Energy Energy `json:"energy"`
	// GradientNorm is the L2 norm of the raw gradient.
	GradientNorm float64 `json:"gradient_norm"`
	// Clipped reports that the gradient was rescaled to ClipNorm.
	Clipped bool `json:"clipped"`
	// MaxChange is max |u_next - u| over all pixels.
	MaxChange float64 `json:"max_change"`
}

// Minimizer performs gradient-descent steps on the total energy
//
//	E(u) = DataFitting(u) + λ·Regularizer(u)
//
// A Minimizer holds no per-session state and may be shared.
type Minimizer struct {
	// HeavisideWidth is the membership smoothing width η (0 = default).
	HeavisideWidth float64
	// ClipNorm, when positive, rescales any raw gradient whose L2 norm exceeds
	// it down to that norm before the update. Zero leaves gradients untouched.
	ClipNorm float64
	// Workers bounds row-block parallelism; <= 0 means runtime.NumCPU().
	Workers int
}

func (m *Minimizer) dataTerm(threshold float64) DataFitting {
	return DataFitting{Threshold: threshold, Width: m.HeavisideWidth, Workers: m.Workers}
}

// Energy evaluates the total energy of u without stepping.
func (m *Minimizer) Energy(u *field.Field, img *field.Image, threshold float64, means RegionMeans, reg Regularizer, lambda float64) (Energy, error) {
	const op = "energy"
	if err := checkShape(op, u, img); err != nil {
		return Energy{}, err
	}
	if err := checkThreshold(op, threshold); err != nil {
		return Energy{}, err
	}
	e := Energy{Data: m.dataTerm(threshold).Energy(u, img, means), Lambda: lambda}
	if reg != nil {
		e.Penalty, _ = reg.Penalty(u)
	}
	e.Total = e.Data + lambda*e.Penalty
	return e, nil
}

// Step returns u - ε·∇E(u) without modifying u.
//
// The next field is not projected back into [0,1]. A NaN or ±Inf in the
// gradient or in the result is returned as a KindDiverged error whose Step is
// zero; sessions fill in their iteration index.
func (m *Minimizer) Step(u *field.Field, img *field.Image, threshold float64, means RegionMeans, reg Regularizer, lambda, epsilon float64) (*field.Field, StepReport, error) {
	const op = "step"
	if err := checkShape(op, u, img); err != nil {
		return nil, StepReport{}, err
	}
	if err := checkThreshold(op, threshold); err != nil {
		return nil, StepReport{}, err
	}
	if err := checkStepParams(op, lambda, epsilon); err != nil {
		return nil, StepReport{}, err
	}
	if reg == nil {
		return nil, StepReport{}, preconditionError(op, "regularizer is required")
	}

	data := m.dataTerm(threshold)
	grad := field.New(u.Height(), u.Width())
	data.Gradient(u, img, means, grad)

	var report StepReport
	report.Energy.Data = data.Energy(u, img, means)
	report.Energy.Lambda = lambda
	if lambda != 0 {
		penalty, regGrad := reg.Penalty(u)
		if regGrad == nil || !regGrad.SameShape(u.Height(), u.Width()) {
			return nil, report, preconditionError(op, "regularizer %s returned a gradient of the wrong shape", reg.Name())
		}
		report.Energy.Penalty = penalty
		floats.AddScaled(grad.Data(), lambda, regGrad.Data())
	}
	report.Energy.Total = report.Energy.Data + lambda*report.Energy.Penalty

	if idx, v, bad := grad.FirstNonFinite(); bad {
		return nil, report, divergedError(op, "gradient", 0, idx, v)
	}

	report.GradientNorm = floats.Norm(grad.Data(), 2)
	if m.ClipNorm > 0 && report.GradientNorm > m.ClipNorm {
		floats.Scale(m.ClipNorm/report.GradientNorm, grad.Data())
		report.Clipped = true
	}

	next := u.Clone()
	floats.AddScaled(next.Data(), -epsilon, grad.Data())
	if idx, v, bad := next.FirstNonFinite(); bad {
		return nil, report, divergedError(op, "field", 0, idx, v)
	}
	report.MaxChange = epsilon * floats.Norm(grad.Data(), math.Inf(1))
	return next, report, nil
}

// ClipGradient rescales grad in place so its L2 norm is at most maxNorm and
// reports whether it did. Callers stepping with their own gradients use it
// before applying the update.
func ClipGradient(grad *field.Field, maxNorm float64) bool {
	if maxNorm <= 0 {
		return false
	}
	norm := floats.Norm(grad.Data(), 2)
	if norm <= maxNorm {
		return false
	}
	floats.Scale(maxNorm/norm, grad.Data())
	return true
}

func checkStepParams(op string, lambda, epsilon float64) error {
	if !(lambda >= 0) || math.IsInf(lambda, 1) {
		return preconditionError(op, "lambda must be a finite value >= 0, got %g", lambda)
	}
	if !(epsilon > 0) || math.IsInf(epsilon, 1) {
		return preconditionError(op, "epsilon must be a finite value > 0, got %g", epsilon)
	}
	return nil
}
