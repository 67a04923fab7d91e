package segment

import (
	"errors"
	"math"
	"testing"

	"github.com/ironsheep/segment-mcp/internal/field"
)

func TestNewSession_RandomInit(t *testing.T) {
	img := squareImage(t)
	a, err := NewSession(img, nil, TotalVariation{}, DefaultOptions().WithSeed(7))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	b, err := NewSession(img, nil, TotalVariation{}, DefaultOptions().WithSeed(7))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if a.State() != StateReady {
		t.Errorf("state: got %s, want ready", a.State())
	}
	if !a.Field().Equal(b.Field()) {
		t.Error("equal seeds should give equal initial fields")
	}
	lo, hi := a.Field().MinMax()
	if lo < 0 || hi >= 1 {
		t.Errorf("random init outside [0,1): min=%g max=%g", lo, hi)
	}
	if _, stale := a.Means(); stale {
		t.Error("means should be fresh after construction")
	}
}

func TestNewSession_Preconditions(t *testing.T) {
	img := squareImage(t)
	convnet := mustDecodeModel(t, testModelJSON)
	convnet.InputHeight, convnet.InputWidth = 128, 128

	tests := []struct {
		name string
		u    *field.Field
		reg  Regularizer
		opts Options
	}{
		{"shape mismatch", field.New(2, 2), TotalVariation{}, DefaultOptions()},
		{"threshold", nil, TotalVariation{}, DefaultOptions().WithThreshold(1.2)},
		{"nil regularizer", nil, nil, DefaultOptions()},
		{"model input shape", nil, NewLearned("convnet", convnet), DefaultOptions()},
		{"non-finite seed", field.Constant(4, 4, math.Inf(1)), TotalVariation{}, DefaultOptions()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(img, tt.u, tt.reg, tt.opts)
			if !IsKind(err, KindPrecondition) {
				t.Errorf("got %v, want precondition error", err)
			}
		})
	}
}

func TestSession_SeedIsCopied(t *testing.T) {
	seed := squareSeed(t)
	s, err := NewSession(squareImage(t), seed, TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	seed.Set(0, 0, 99)
	if s.Field().At(0, 0) == 99 {
		t.Error("session must own its field")
	}
}

func TestSession_StaleStatisticsAreRefreshed(t *testing.T) {
	s, err := NewSession(squareImage(t), squareSeed(t), TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if _, err := s.Step(0.1, 0.01); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if _, stale := s.Means(); !stale {
		t.Error("means should be stale after a step")
	}
	if got := s.Diagnostics().AutoRefreshes; got != 0 {
		t.Errorf("AutoRefreshes after first step: got %d, want 0", got)
	}

	if _, err := s.Step(0.1, 0.01); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if got := s.Diagnostics().AutoRefreshes; got != 1 {
		t.Errorf("AutoRefreshes after second step: got %d, want 1", got)
	}

	if _, err := s.UpdateStatistics(); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}
	if err := s.SetThreshold(0.45); err != nil {
		t.Fatalf("SetThreshold failed: %v", err)
	}
	if _, stale := s.Means(); !stale {
		t.Error("changing the threshold should invalidate the means")
	}
	if err := s.SetThreshold(3); !IsKind(err, KindPrecondition) {
		t.Errorf("SetThreshold(3): got %v, want precondition error", err)
	}
	if s.Threshold() != 0.45 {
		t.Errorf("rejected threshold changed state: %g", s.Threshold())
	}
}

func TestSession_ExplicitStatisticsFailFast(t *testing.T) {
	opts := DefaultOptions()
	opts.ExplicitStatistics = true
	s, err := NewSession(squareImage(t), squareSeed(t), TotalVariation{}, opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if _, err := s.Step(0.1, 0.01); err != nil {
		t.Fatalf("first step has fresh means: %v", err)
	}
	before := s.Field()
	if _, err := s.Step(0.1, 0.01); !IsKind(err, KindStaleStatistics) {
		t.Fatalf("got %v, want stale statistics error", err)
	}
	if !s.Field().Equal(before) {
		t.Error("a refused step must not change the field")
	}

	if _, err := s.UpdateStatistics(); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}
	if _, err := s.Step(0.1, 0.01); err != nil {
		t.Fatalf("step after update failed: %v", err)
	}
	if got := s.Diagnostics().AutoRefreshes; got != 0 {
		t.Errorf("AutoRefreshes: got %d, want 0", got)
	}
}

func explicitSession(t *testing.T) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.ExplicitStatistics = true
	opts.Tolerance = 0
	s, err := NewSession(squareImage(t), squareSeed(t), TotalVariation{}, opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestSession_RunExplicitStatistics(t *testing.T) {
	s := explicitSession(t)

	steps := 0
	for snap, err := range s.Run(10, 0.1, 0.01) {
		if err != nil {
			t.Fatalf("step %d: %v", snap.Step, err)
		}
		steps++
	}
	if steps != 10 {
		t.Errorf("steps: got %d, want 10", steps)
	}
	if s.State() != StateExhausted {
		t.Errorf("state: got %v, want exhausted", s.State())
	}
	if got := s.Diagnostics().AutoRefreshes; got != 9 {
		t.Errorf("AutoRefreshes: got %d, want 9", got)
	}

	// The last step left the means stale; a new run must not hide that.
	for _, err := range s.Run(1, 0.1, 0.01) {
		if !IsKind(err, KindStaleStatistics) {
			t.Errorf("run on stale means: got %v, want stale statistics error", err)
		}
	}
}

func TestSession_RunExplicitStatisticsThresholdChange(t *testing.T) {
	s := explicitSession(t)

	var errs []error
	for snap, err := range s.Run(5, 0.1, 0.01) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if snap.Step == 2 {
			if err := s.SetThreshold(0.4); err != nil {
				t.Fatalf("SetThreshold failed: %v", err)
			}
		}
	}
	if len(errs) != 1 || !IsKind(errs[0], KindStaleStatistics) {
		t.Fatalf("got errors %v, want one stale statistics error", errs)
	}
	if got := s.Diagnostics().Steps; got != 2 {
		t.Errorf("steps: got %d, want 2", got)
	}
}

func TestSession_EnergyExplicitStatistics(t *testing.T) {
	s := explicitSession(t)

	if _, err := s.Energy(0.1); err != nil {
		t.Fatalf("Energy on fresh means: %v", err)
	}
	if _, err := s.Step(0.1, 0.01); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if _, err := s.Energy(0.1); !IsKind(err, KindStaleStatistics) {
		t.Fatalf("got %v, want stale statistics error", err)
	}
	if _, stale := s.Means(); !stale {
		t.Error("a refused Energy must leave the means stale")
	}

	if _, err := s.UpdateStatistics(); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}
	if _, err := s.Energy(0.1); err != nil {
		t.Errorf("Energy after update: %v", err)
	}
}

func TestSession_EmptyRegionIsObservable(t *testing.T) {
	s, err := NewSession(squareImage(t), field.Constant(4, 4, 0.9), TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	means, _ := s.Means()
	if !means.OutsideEmpty {
		t.Error("OutsideEmpty should be set")
	}
	if math.Abs(means.Outside-0.25) > 1e-12 {
		t.Errorf("c_out: got %g, want image mean 0.25", means.Outside)
	}
	if s.Diagnostics().EmptyRegions != 1 {
		t.Errorf("EmptyRegions: got %d, want 1", s.Diagnostics().EmptyRegions)
	}
}

func TestSession_DivergedStep(t *testing.T) {
	s, err := NewSession(squareImage(t), blowUpField(), TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	before := s.Field()

	snap, err := s.Step(1, 1e6)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindDiverged {
		t.Fatalf("got %v, want diverged error", err)
	}
	if e.Step != 1 || snap.Step != 1 {
		t.Errorf("step index: error=%d snapshot=%d, want 1", e.Step, snap.Step)
	}
	if e.Index < 0 || !(math.IsNaN(e.Value) || math.IsInf(e.Value, 0)) {
		t.Errorf("offending value not reported: index=%d value=%g", e.Index, e.Value)
	}
	if s.State() != StateDiverged {
		t.Errorf("state: got %s, want diverged", s.State())
	}
	if !s.Field().Equal(before) {
		t.Error("a diverged step must not replace the field")
	}
	if _, _, bad := s.Field().FirstNonFinite(); bad {
		t.Error("field contains non-finite values")
	}

	if _, err := s.Step(0.1, 0.01); !IsKind(err, KindDiverged) {
		t.Errorf("step after divergence: got %v, want diverged error", err)
	}
	if err := s.Reseed(squareSeed(t)); !IsKind(err, KindDiverged) {
		t.Errorf("reseed after divergence: got %v, want diverged error", err)
	}
}

func TestSession_RunStopsOnDivergence(t *testing.T) {
	quadratic := PriorFunc(func(u *field.Field) (float64, *field.Field) {
		grad := field.New(u.Height(), u.Width())
		var sum float64
		for i, v := range u.Data() {
			sum += v * v
			grad.Data()[i] = 2 * v
		}
		return sum, grad
	})
	s, err := NewSession(squareImage(t), nil, NewLearned("quadratic", quadratic), DefaultOptions().WithSeed(3))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	var last Snapshot
	var runErr error
	count := 0
	for snap, err := range s.Run(500, 1, 1e6) {
		if err != nil {
			last, runErr = snap, err
			break
		}
		if _, v, bad := snap.Field.FirstNonFinite(); bad {
			t.Fatalf("snapshot %d carries non-finite value %g", snap.Step, v)
		}
		count++
	}

	if !IsKind(runErr, KindDiverged) {
		t.Fatalf("run ended with %v, want diverged error", runErr)
	}
	if last.Step != count+1 {
		t.Errorf("diverged at step %d after %d good snapshots", last.Step, count)
	}
	if s.State() != StateDiverged {
		t.Errorf("state: got %s, want diverged", s.State())
	}
}

func TestSession_RunIsLazy(t *testing.T) {
	s, err := NewSession(squareImage(t), squareSeed(t), TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	for snap, err := range s.Run(100, 0.1, 0.01) {
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if snap.Step == 3 {
			break
		}
	}
	if got := s.Diagnostics().Steps; got != 3 {
		t.Errorf("steps taken: got %d, want 3", got)
	}
	if s.State() != StateStepping {
		t.Errorf("state after early break: got %s, want stepping", s.State())
	}
}

func TestSession_RunExhaustsBudget(t *testing.T) {
	s, err := NewSession(squareImage(t), squareSeed(t), TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	run := s.Run(5, 0.1, 0.01)
	steps := 0
	for snap, err := range run {
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		steps++
		if snap.Step != steps {
			t.Errorf("snapshot step: got %d, want %d", snap.Step, steps)
		}
	}
	if steps != 5 {
		t.Errorf("snapshots: got %d, want 5", steps)
	}
	if s.State() != StateExhausted {
		t.Errorf("state: got %s, want step_budget_exhausted", s.State())
	}

	for _, err := range run {
		if !IsKind(err, KindPrecondition) {
			t.Errorf("re-ranging a run: got %v, want precondition error", err)
		}
	}
}

func TestSession_RunConverges(t *testing.T) {
	s, err := NewSession(squareImage(t), squareSeed(t), TotalVariation{}, DefaultOptions().WithTolerance(10))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	steps := 0
	for _, err := range s.Run(50, 0.1, 0.01) {
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		steps++
	}
	if steps != 1 {
		t.Errorf("snapshots: got %d, want 1", steps)
	}
	if s.State() != StateConverged {
		t.Errorf("state: got %s, want converged", s.State())
	}
}

func TestSession_ExtractContourIsPure(t *testing.T) {
	s, err := NewSession(squareImage(t), nil, TotalVariation{}, DefaultOptions().WithSeed(11))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	before := s.Field()

	a, err := s.ExtractContour(0.5)
	if err != nil {
		t.Fatalf("ExtractContour failed: %v", err)
	}
	b, err := s.ExtractContour(0.5)
	if err != nil {
		t.Fatalf("ExtractContour failed: %v", err)
	}

	if !a.Mask.Equal(b.Mask) {
		t.Error("masks differ between calls")
	}
	if len(a.Paths) != len(b.Paths) {
		t.Fatalf("path count differs: %d vs %d", len(a.Paths), len(b.Paths))
	}
	for i := range a.Paths {
		if !a.Paths[i].Points.Equal(b.Paths[i].Points) || a.Paths[i].Closed != b.Paths[i].Closed {
			t.Errorf("path %d differs between calls", i)
		}
	}
	if !s.Field().Equal(before) {
		t.Error("ExtractContour modified the field")
	}
	if _, stale := s.Means(); stale {
		t.Error("ExtractContour should not touch the means")
	}
	if _, err := s.ExtractContour(-1); !IsKind(err, KindPrecondition) {
		t.Errorf("ExtractContour(-1): got %v, want precondition error", err)
	}
}

func TestSession_Reseed(t *testing.T) {
	s, err := NewSession(squareImage(t), field.Constant(4, 4, 0.1), TotalVariation{}, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if err := s.Reseed(squareSeed(t)); err != nil {
		t.Fatalf("Reseed failed: %v", err)
	}
	means, stale := s.Means()
	if stale || means.Inside != 1 || means.Outside != 0 {
		t.Errorf("means after reseed: %+v stale=%v", means, stale)
	}
	if err := s.Reseed(field.New(2, 2)); !IsKind(err, KindPrecondition) {
		t.Errorf("Reseed with wrong shape: got %v, want precondition error", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateReady:         "ready",
		StateStepping:      "stepping",
		StateConverged:     "converged",
		StateDiverged:      "diverged",
		StateExhausted:     "step_budget_exhausted",
		State(99):          "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String(): got %q, want %q", int(state), got, want)
		}
	}
}
