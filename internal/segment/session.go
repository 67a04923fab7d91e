package segment

import (
	"errors"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segment-mcp/internal/field"
	"github.com/ironsheep/segment-mcp/internal/logger"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateStepping
	StateConverged
	StateDiverged
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateStepping:
		return "stepping"
	case StateConverged:
		return "converged"
	case StateDiverged:
		return "diverged"
	case StateExhausted:
		return "step_budget_exhausted"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options configures a Session.
type Options struct {
	// Threshold separates inside (u > Threshold) from outside.
	Threshold float64
	// Minimizer carries the descent settings shared by every step.
	Minimizer Minimizer
	// Tolerance, when positive, moves the session to StateConverged after a step
	// whose largest pixel change is below it.
	Tolerance float64
	// ExplicitStatistics makes Step and Energy fail with KindStaleStatistics
	// instead of refreshing stale means; the caller must call
	// UpdateStatistics. Run still refreshes the staleness left by its own
	// steps.
	ExplicitStatistics bool
	// Seed makes the random initial field reproducible; 0 uses a random seed.
	Seed uint64
	// Logger receives diagnostics; nil uses the package logger.
	Logger *logrus.Entry
}

// DefaultOptions returns the defaults: threshold 0.5, default
// membership width, no clipping, no convergence test.
func DefaultOptions() Options {
	return Options{
		Threshold: 0.5,
		Minimizer: Minimizer{HeavisideWidth: DefaultHeavisideWidth},
	}
}

// WithThreshold returns options with a different threshold.
func (o Options) WithThreshold(t float64) Options {
	o.Threshold = t
	return o
}

// WithClipNorm returns options whose steps clip the gradient L2 norm.
func (o Options) WithClipNorm(norm float64) Options {
	o.Minimizer.ClipNorm = norm
	return o
}

// WithTolerance returns options with a convergence tolerance.
func (o Options) WithTolerance(tol float64) Options {
	o.Tolerance = tol
	return o
}

// WithSeed returns options with a fixed random seed.
func (o Options) WithSeed(seed uint64) Options {
	o.Seed = seed
	return o
}

// Diagnostics counts internal-quality events over a session's life.
type Diagnostics struct {
	Steps int `json:"steps"`
	// StatisticsUpdates counts every recomputation of the region means.
	StatisticsUpdates int `json:"statistics_updates"`
	// AutoRefreshes counts recomputations Step performed because the means were stale.
	AutoRefreshes int `json:"auto_refreshes"`
	// EmptyRegions counts recomputations that fell back to the whole-image mean.
	EmptyRegions int `json:"empty_regions"`
}

// Snapshot is the state after one iteration.
type Snapshot struct {
	Step   int          `json:"step"`
	Field  *field.Field `json:"-"`
	Means  RegionMeans  `json:"means"`
	Report StepReport   `json:"report"`
	State  State        `json:"state"`
}

// Session owns one segmentation in progress: the image, the evolving field,
// the threshold, the region means and the regularizer.
//
// The image and regularizer are fixed for the session's life; to change them,
// build a new Session. A Session is not safe for concurrent use.
type Session struct {
	img       *field.Image
	u         *field.Field
	reg       Regularizer
	threshold float64
	min       Minimizer
	tolerance float64
	explicit  bool

	means RegionMeans
	stale bool
	// edits counts caller changes that invalidate the means.
	edits int

	state      State
	divergence *Error
	diag       Diagnostics
	log        *logrus.Entry
}

// NewSession creates a Ready session. A nil u starts from a uniform random
// field in [0,1); a supplied u is copied.
func NewSession(img *field.Image, u *field.Field, reg Regularizer, opts Options) (*Session, error) {
	const op = "new session"
	if img == nil {
		return nil, preconditionError(op, "image is required")
	}
	if reg == nil {
		return nil, preconditionError(op, "regularizer is required")
	}
	if err := checkThreshold(op, opts.Threshold); err != nil {
		return nil, err
	}
	if sc, ok := reg.(ShapeConstrained); ok {
		if err := sc.CheckShape(img.Height(), img.Width()); err != nil {
			return nil, err
		}
	}

	if u == nil {
		u = field.Random(img.Height(), img.Width(), field.NewRand(opts.Seed))
	} else {
		if err := checkShape(op, u, img); err != nil {
			return nil, err
		}
		if idx, v, bad := u.FirstNonFinite(); bad {
			return nil, preconditionError(op, "initial field has non-finite value %g at pixel %d", v, idx)
		}
		u = u.Clone()
	}

	log := opts.Logger
	if log == nil {
		log = logger.WithField("component", "segment")
	}

	s := &Session{
		img:       img,
		u:         u,
		reg:       reg,
		threshold: opts.Threshold,
		min:       opts.Minimizer,
		tolerance: opts.Tolerance,
		explicit:  opts.ExplicitStatistics,
		state:     StateUninitialized,
		log:       log.WithField("regularizer", reg.Name()),
	}
	if _, err := s.UpdateStatistics(); err != nil {
		return nil, err
	}
	s.state = StateReady
	return s, nil
}

// Image returns the session's image.
func (s *Session) Image() *field.Image { return s.img }

// Field returns a copy of the current field.
func (s *Session) Field() *field.Field { return s.u.Clone() }

// Regularizer returns the installed regularizer.
func (s *Session) Regularizer() Regularizer { return s.reg }

// Threshold returns the current threshold.
func (s *Session) Threshold() float64 { return s.threshold }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Means returns the last computed region means and whether they are stale.
func (s *Session) Means() (RegionMeans, bool) { return s.means, s.stale }

// Diagnostics returns the session counters.
func (s *Session) Diagnostics() Diagnostics { return s.diag }

// Divergence returns the error that made the session diverge, or nil.
func (s *Session) Divergence() error {
	if s.divergence == nil {
		return nil
	}
	return s.divergence
}

// SetThreshold changes the threshold and invalidates the region means.
func (s *Session) SetThreshold(t float64) error {
	if err := checkThreshold("set threshold", t); err != nil {
		return err
	}
	if t != s.threshold {
		s.threshold = t
		s.stale = true
		s.edits++
	}
	return nil
}

// Reseed replaces the field with a copy of u, e.g. after the driver draws a
// new initialisation, and recomputes the region means. A diverged session
// cannot be reseeded.
func (s *Session) Reseed(u *field.Field) error {
	const op = "reseed"
	if s.state == StateDiverged {
		return s.divergence
	}
	if err := checkShape(op, u, s.img); err != nil {
		return err
	}
	if idx, v, bad := u.FirstNonFinite(); bad {
		return preconditionError(op, "field has non-finite value %g at pixel %d", v, idx)
	}
	s.u = u.Clone()
	if _, err := s.UpdateStatistics(); err != nil {
		return err
	}
	s.state = StateReady
	return nil
}

// UpdateStatistics recomputes the region means from the current field,
// image and threshold.
func (s *Session) UpdateStatistics() (RegionMeans, error) {
	means, err := ComputeRegionMeans(s.u, s.img, s.threshold)
	if err != nil {
		return RegionMeans{}, err
	}
	s.means = means
	s.stale = false
	s.diag.StatisticsUpdates++
	if means.AnyEmpty() {
		s.diag.EmptyRegions++
		s.log.WithFields(logrus.Fields{
			"threshold":     s.threshold,
			"inside_empty":  means.InsideEmpty,
			"outside_empty": means.OutsideEmpty,
			"fallback_mean": s.img.Mean(),
		}).Warn("Empty region, using whole-image mean")
	}
	return means, nil
}

// Step performs one descent step and replaces the field with the result.
//
// Stale region means (after a previous step or a threshold change) are
// recomputed first; Diagnostics.AutoRefreshes counts these. With
// Options.ExplicitStatistics a stale session returns KindStaleStatistics
// instead. A diverged step
// leaves the field untouched and moves the session to StateDiverged, after
// which every Step returns the same error.
func (s *Session) Step(lambda, epsilon float64) (Snapshot, error) {
	if s.state == StateDiverged {
		return Snapshot{Step: s.diag.Steps, State: s.state}, s.divergence
	}
	if err := checkStepParams("step", lambda, epsilon); err != nil {
		return Snapshot{}, err
	}
	if s.stale {
		if s.explicit {
			return Snapshot{}, &Error{Kind: KindStaleStatistics, Op: "step", Message: "region means are stale; call UpdateStatistics", Index: -1}
		}
		if err := s.refreshStale(); err != nil {
			return Snapshot{}, err
		}
	}

	next, report, err := s.min.Step(s.u, s.img, s.threshold, s.means, s.reg, lambda, epsilon)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Kind == KindDiverged {
			e.Step = s.diag.Steps + 1
			s.divergence = e
			s.state = StateDiverged
			s.log.WithFields(logrus.Fields{
				"step":    e.Step,
				"pixel":   e.Index,
				"value":   e.Value,
				"lambda":  lambda,
				"epsilon": epsilon,
			}).Error("Descent step diverged")
			return Snapshot{Step: e.Step, Means: s.means, Report: report, State: s.state}, e
		}
		return Snapshot{}, err
	}

	s.u = next
	s.stale = true
	s.diag.Steps++
	s.state = StateStepping
	if s.tolerance > 0 && report.MaxChange < s.tolerance {
		s.state = StateConverged
	}
	return Snapshot{
		Step:   s.diag.Steps,
		Field:  next.Clone(),
		Means:  s.means,
		Report: report,
		State:  s.state,
	}, nil
}

// refreshStale recomputes outdated means and counts it as an auto refresh.
func (s *Session) refreshStale() error {
	if _, err := s.UpdateStatistics(); err != nil {
		return err
	}
	s.diag.AutoRefreshes++
	s.log.WithField("step", s.diag.Steps+1).Debug("Refreshed stale region means")
	return nil
}

// Run returns a lazy sequence of at most n snapshots, one per step.
//
// Each value is produced only when the consumer asks for it, so breaking out
// of the range loop stops stepping between iterations. The sequence ends
// early after a diverged step (yielded with its error) or on convergence;
// otherwise the session ends in StateExhausted. A sequence can be ranged over
// once; later attempts yield a precondition error.
//
// With Options.ExplicitStatistics the means must be fresh when the run
// starts. Between its own steps Run refreshes them (counted in
// AutoRefreshes), but a SetThreshold from the loop body still makes the next
// step fail with KindStaleStatistics.
func (s *Session) Run(n int, lambda, epsilon float64) iter.Seq2[Snapshot, error] {
	consumed := false
	return func(yield func(Snapshot, error) bool) {
		if consumed {
			yield(Snapshot{}, preconditionError("run", "sequence already consumed; start a new run"))
			return
		}
		consumed = true
		if n < 0 {
			yield(Snapshot{}, preconditionError("run", "step count must be >= 0, got %d", n))
			return
		}
		edits := s.edits
		for i := 0; i < n; i++ {
			if i > 0 && s.explicit && s.stale && s.edits == edits {
				if err := s.refreshStale(); err != nil {
					yield(Snapshot{}, err)
					return
				}
			}
			snap, err := s.Step(lambda, epsilon)
			if err != nil {
				yield(snap, err)
				return
			}
			if !yield(snap, nil) {
				return
			}
			if snap.State == StateConverged {
				s.log.WithField("step", snap.Step).Info("Segmentation converged")
				return
			}
		}
		if s.state != StateDiverged && s.state != StateConverged {
			s.state = StateExhausted
		}
	}
}

// Energy evaluates the total energy of the current field with the current
// region means, refreshing them first if they are stale. With
// Options.ExplicitStatistics stale means are a KindStaleStatistics error.
func (s *Session) Energy(lambda float64) (Energy, error) {
	if s.stale {
		if s.explicit {
			return Energy{}, &Error{Kind: KindStaleStatistics, Op: "energy", Message: "region means are stale; call UpdateStatistics", Index: -1}
		}
		if _, err := s.UpdateStatistics(); err != nil {
			return Energy{}, err
		}
	}
	return s.min.Energy(s.u, s.img, s.threshold, s.means, s.reg, lambda)
}

// Mask thresholds the current field. It does not modify the session.
func (s *Session) Mask(threshold float64) (*field.Mask, error) {
	if err := checkThreshold("mask", threshold); err != nil {
		return nil, err
	}
	return field.Threshold(s.u, threshold), nil
}

// ExtractContour derives the mask and boundary curves of the current field at
// threshold. It does not modify the session.
func (s *Session) ExtractContour(threshold float64) (*Contour, error) {
	if err := checkThreshold("extract contour", threshold); err != nil {
		return nil, err
	}
	return ExtractContour(s.u, threshold), nil
}
