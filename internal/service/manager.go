package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segment-mcp/internal/config"
	"github.com/ironsheep/segment-mcp/internal/field"
	"github.com/ironsheep/segment-mcp/internal/imaging"
	"github.com/ironsheep/segment-mcp/internal/logger"
	"github.com/ironsheep/segment-mcp/internal/segment"
)

// Manager owns every open segmentation session, keyed by a random handle.
//
// Operations on one session are serialised by a per-session mutex, so two
// clients driving the same handle never interleave steps. Different sessions
// run concurrently.
type Manager struct {
	cfg   *config.Config
	cache *imaging.ImageCache
	model *segment.ConvNet
	log   *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	id      string
	source  string
	info    *imaging.ImageInfo
	session *segment.Session
	created time.Time
}

// NewManager creates a manager. When cfg.ModelPath is set the ConvNet weights
// are loaded once here and shared read-only by every learned session.
func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	m := &Manager{
		cfg:      cfg,
		cache:    imaging.NewImageCache(),
		log:      logger.WithField("component", "service"),
		sessions: make(map[string]*entry),
	}
	if cfg.ModelPath != "" {
		net, err := segment.LoadConvNet(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load model %s: %w", cfg.ModelPath, err)
		}
		m.model = net
		h, w := net.InputShape()
		m.log.WithFields(logrus.Fields{
			"model":        net.Name,
			"layers":       len(net.Layers),
			"input_height": h,
			"input_width":  w,
		}).Info("Loaded learned regularizer")
	}
	return m, nil
}

// HasModel reports whether learned sessions can be opened.
func (m *Manager) HasModel() bool { return m.model != nil }

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Open loads an image, builds the initial field and registers a new session.
func (m *Manager) Open(req OpenRequest) (*SessionInfo, error) {
	if req.ImagePath == "" {
		return nil, NewValidationError("image_path is required", nil)
	}
	reg, loadOpts, err := m.regularizer(req.Regularizer)
	if err != nil {
		return nil, err
	}
	loadOpts.Region = req.Region
	if req.Crop != nil {
		loadOpts.Crop = *req.Crop
	}
	img, info, err := m.cache.LoadField(req.ImagePath, loadOpts)
	if err != nil {
		return nil, NewValidationError("failed to load image", err)
	}
	u, err := m.initialField(img, req.Init, req.Seed, req.Sigma, req.FieldPath)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	opts := segment.DefaultOptions().WithThreshold(m.cfg.Threshold).WithTolerance(m.cfg.Tolerance).WithClipNorm(m.cfg.ClipNorm)
	opts.Minimizer.HeavisideWidth = m.cfg.HeavisideWidth
	opts.Minimizer.Workers = m.cfg.Workers
	if req.Threshold != nil {
		opts = opts.WithThreshold(*req.Threshold)
	}
	if req.ClipNorm != nil {
		opts = opts.WithClipNorm(*req.ClipNorm)
	}
	if req.Tolerance != nil {
		opts = opts.WithTolerance(*req.Tolerance)
	}
	opts.Logger = m.log.WithField("session", id)

	sess, err := segment.NewSession(img, u, reg, opts)
	if err != nil {
		return nil, err
	}
	e := &entry{id: id, source: req.ImagePath, info: info, session: sess, created: time.Now()}

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session":     id,
		"source":      req.ImagePath,
		"regularizer": reg.Name(),
		"height":      img.Height(),
		"width":       img.Width(),
	}).Info("Opened segmentation session")

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.describe(), nil
}

// Info returns the state of a session.
func (m *Manager) Info(id string) (*SessionInfo, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.describe(), nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []*SessionInfo {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].created.Before(entries[j].created) })
	out := make([]*SessionInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.describe())
		e.mu.Unlock()
	}
	return out
}

// Seed replaces the session's field and recomputes the region means.
func (m *Manager) Seed(id string, req SeedRequest) (*SessionInfo, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := m.initialField(e.session.Image(), req.Init, req.Seed, req.Sigma, req.FieldPath)
	if err != nil {
		return nil, err
	}
	if err := e.session.Reseed(u); err != nil {
		return nil, err
	}
	return e.describe(), nil
}

// SetThreshold changes the partition threshold of a session.
func (m *Manager) SetThreshold(id string, threshold float64) (*SessionInfo, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.session.SetThreshold(threshold); err != nil {
		return nil, err
	}
	return e.describe(), nil
}

// Step performs one descent step.
func (m *Manager) Step(id string, req StepRequest) (*StepResult, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	lambda, epsilon := m.stepParams(req.Lambda, req.Epsilon)

	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.session.Step(lambda, epsilon)
	if err != nil {
		return nil, err
	}
	return &StepResult{SessionID: id, Snapshot: snap}, nil
}

// Run performs up to req.Steps descent steps, stopping early on convergence,
// divergence, cancellation of ctx or the configured run timeout. A diverged
// run returns both the partial result and the divergence error.
func (m *Manager) Run(ctx context.Context, id string, req RunRequest) (*RunResult, error) {
	n := req.Steps
	if n == 0 {
		n = m.cfg.Steps
	}
	if n < 0 || n > m.cfg.MaxSteps {
		return nil, NewValidationError(fmt.Sprintf("steps must be in [1,%d], got %d", m.cfg.MaxSteps, n), nil)
	}
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	lambda, epsilon := m.stepParams(req.Lambda, req.Epsilon)

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	res := &RunResult{SessionID: id, StoppedBy: StopExhausted}
	var runErr error
	for snap, err := range e.session.Run(n, lambda, epsilon) {
		if err != nil {
			runErr = err
			if segment.IsKind(err, segment.KindDiverged) {
				res.StoppedBy = StopDiverged
			}
			break
		}
		res.Steps++
		last := snap
		res.Last = &last
		if req.Trace {
			res.Energies = append(res.Energies, snap.Report.Energy.Total)
		}
		if snap.State == segment.StateConverged {
			res.StoppedBy = StopConverged
		}
		if err := ctx.Err(); err != nil {
			res.StoppedBy = StopCancelled
			if errors.Is(err, context.DeadlineExceeded) {
				res.StoppedBy = StopTimeout
			}
			break
		}
	}
	res.State = e.session.State()
	res.Duration = time.Since(start).String()

	m.log.WithFields(logrus.Fields{
		"session":    id,
		"steps":      res.Steps,
		"stopped_by": res.StoppedBy,
		"duration":   res.Duration,
	}).Info("Run finished")

	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// Contour extracts the boundary at the requested level, optionally
// simplified and rendered over the image.
func (m *Manager) Contour(id string, req ContourRequest) (*ContourResult, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	threshold := e.session.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	c, err := e.session.ExtractContour(threshold)
	if err != nil {
		return nil, err
	}
	if req.Simplify < 0 {
		return nil, NewValidationError("simplify tolerance must be >= 0", nil)
	}
	if req.MinArea < 0 {
		return nil, NewValidationError("min_area must be >= 0", nil)
	}
	// Shapes are measured before simplification.
	shapes := c.Shapes(req.MinArea)
	if req.Simplify > 0 {
		c = c.Simplify(req.Simplify)
	}

	res := &ContourResult{
		SessionID:    id,
		Threshold:    threshold,
		InsidePixels: c.Mask.Count(),
		Length:       c.Length(),
		Paths:        c.Paths,
		Shapes:       shapes,
	}
	if res.Paths == nil {
		res.Paths = []segment.Path{}
	}
	if req.Overlay {
		opts := imaging.DefaultOverlayOptions()
		if req.Color != "" {
			opts.Color = req.Color
		}
		if req.Opacity != nil {
			opts.Opacity = *req.Opacity
		}
		if req.Scale != 0 {
			opts.Scale = req.Scale
		}
		png, err := imaging.RenderOverlay(e.session.Image(), c.Paths, opts)
		if err != nil {
			return nil, NewValidationError("failed to render overlay", err)
		}
		res.Overlay = png
	}
	return res, nil
}

// Mask renders the thresholded field as a black and white PNG.
func (m *Manager) Mask(id string, req MaskRequest) (*MaskResult, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	threshold := e.session.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	mask, err := e.session.Mask(threshold)
	if err != nil {
		return nil, err
	}
	png, err := imaging.RenderMask(mask, req.Scale)
	if err != nil {
		return nil, NewValidationError("failed to render mask", err)
	}
	return &MaskResult{SessionID: id, Threshold: threshold, InsidePixels: mask.Count(), Image: png}, nil
}

// Energy evaluates the decomposed energy of the current field.
func (m *Manager) Energy(id string, lambda *float64) (*EnergyResult, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	l, _ := m.stepParams(lambda, nil)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, stale := e.session.Means()
	en, err := e.session.Energy(l)
	if err != nil {
		return nil, err
	}
	means, _ := e.session.Means()
	return &EnergyResult{SessionID: id, Energy: en, Means: means, WasStale: stale}, nil
}

// SaveField writes the current field to path in gonum's binary matrix format.
func (m *Manager) SaveField(id, path string) (*SaveResult, error) {
	if path == "" {
		return nil, NewValidationError("path is required", nil)
	}
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	u := e.session.Field()
	e.mu.Unlock()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewValidationError("failed to create directory", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, NewValidationError("failed to create field file", err)
	}
	defer f.Close()
	n, err := u.WriteTo(f)
	if err != nil {
		return nil, NewInternalError("failed to write field", err)
	}
	return &SaveResult{SessionID: id, Path: path, Height: u.Height(), Width: u.Width(), Bytes: n}, nil
}

// Evaluate scores the session mask against a reference mask image with the
// Jaccard index. The reference is resampled to the session's image size.
func (m *Manager) Evaluate(id string, req EvaluateRequest) (*EvaluateResult, error) {
	if req.MaskPath == "" {
		return nil, NewValidationError("mask_path is required", nil)
	}
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	threshold := e.session.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	current, err := e.session.Mask(threshold)
	if err != nil {
		return nil, err
	}
	img := e.session.Image()
	opts := imaging.LoadOptions{Height: img.Height(), Width: img.Width()}
	if e.info.Crop != nil {
		opts.Crop = *e.info.Crop
	}
	ref, err := m.cache.LoadMask(req.MaskPath, opts)
	if err != nil {
		return nil, NewValidationError("failed to load reference mask", err)
	}
	j, err := segment.Jaccard(current, ref)
	if err != nil {
		return nil, NewValidationError("masks cannot be compared", err)
	}
	return &EvaluateResult{
		SessionID:       id,
		Threshold:       threshold,
		Jaccard:         j,
		InsidePixels:    current.Count(),
		ReferencePixels: ref.Count(),
	}, nil
}

// Close removes a session. A run already in progress on it still finishes.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return NewNotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}
	m.log.WithField("session", id).Info("Closed segmentation session")
	return nil
}

// CloseAll removes every session, e.g. at shutdown.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	n := len(m.sessions)
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()
	m.cache.Clear()
	return n
}

func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}
	return e, nil
}

func (m *Manager) stepParams(lambda, epsilon *float64) (float64, float64) {
	l, eps := m.cfg.Lambda, m.cfg.Epsilon
	if lambda != nil {
		l = *lambda
	}
	if epsilon != nil {
		eps = *epsilon
	}
	return l, eps
}

func (m *Manager) regularizer(name string) (segment.Regularizer, imaging.LoadOptions, error) {
	switch name {
	case "", RegularizerClassical:
		return segment.TotalVariation{Beta: m.cfg.TVBeta, Workers: m.cfg.Workers}, imaging.LoadOptions{}, nil
	case RegularizerLearned:
		if m.model == nil {
			return nil, imaging.LoadOptions{}, NewValidationError("no learned model configured; set SEGMENT_MODEL_PATH", nil)
		}
		h, w := m.model.InputShape()
		return segment.NewLearned(m.model.Name, m.model), imaging.LoadOptions{Height: h, Width: w}, nil
	default:
		return nil, imaging.LoadOptions{}, NewValidationError(fmt.Sprintf("unknown regularizer %q (want %s or %s)", name, RegularizerClassical, RegularizerLearned), nil)
	}
}

func (m *Manager) initialField(img *field.Image, mode string, seed uint64, sigma float64, path string) (*field.Field, error) {
	switch mode {
	case "", InitRandom:
		return field.Random(img.Height(), img.Width(), field.NewRand(seed)), nil
	case InitIntensity:
		if sigma < 0 {
			return nil, NewValidationError("sigma must be >= 0", nil)
		}
		return imaging.IntensitySeed(img, sigma), nil
	case InitFile:
		if path == "" {
			return nil, NewValidationError("field_path is required for file initialisation", nil)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, NewValidationError("failed to open field file", err)
		}
		defer f.Close()
		u, err := field.ReadFrom(f)
		if err != nil {
			return nil, NewValidationError("failed to read field file", err)
		}
		return u, nil
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown init mode %q", mode), nil)
	}
}

func (e *entry) describe() *SessionInfo {
	s := e.session
	means, stale := s.Means()
	info := &SessionInfo{
		ID:          e.id,
		Source:      e.source,
		Regularizer: s.Regularizer().Name(),
		Height:      s.Image().Height(),
		Width:       s.Image().Width(),
		Threshold:   s.Threshold(),
		State:       s.State(),
		Means:       means,
		Stale:       stale,
		Diagnostics: s.Diagnostics(),
		Image:       e.info,
		CreatedAt:   e.created,
	}
	if err := s.Divergence(); err != nil {
		info.Divergence = err.Error()
	}
	return info
}
