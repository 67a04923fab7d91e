package service

import (
	"time"

	"github.com/ironsheep/segment-mcp/internal/imaging"
	"github.com/ironsheep/segment-mcp/internal/segment"
)

// Regularizer names accepted by OpenRequest.
const (
	RegularizerClassical = "classical"
	RegularizerLearned   = "learned"
)

// Initialisation modes accepted by OpenRequest and SeedRequest.
const (
	InitRandom    = "random"
	InitIntensity = "intensity"
	InitFile      = "file"
)

// Reasons a run stopped, reported in RunResult.StoppedBy.
const (
	StopExhausted = "exhausted"
	StopConverged = "converged"
	StopDiverged  = "diverged"
	StopTimeout   = "timeout"
	StopCancelled = "cancelled"
)

// OpenRequest creates a session. Zero-valued optional fields take the
// configured defaults.
type OpenRequest struct {
	ImagePath   string `json:"image_path"`
	Regularizer string `json:"regularizer,omitempty"`

	// Crop, or the named Region, restricts segmentation to part of the image.
	Crop   *imaging.Region `json:"crop,omitempty"`
	Region string          `json:"region,omitempty"`

	Init      string  `json:"init,omitempty"`
	Seed      uint64  `json:"seed,omitempty"`
	Sigma     float64 `json:"sigma,omitempty"`
	FieldPath string  `json:"field_path,omitempty"`

	Threshold *float64 `json:"threshold,omitempty"`
	ClipNorm  *float64 `json:"clip_norm,omitempty"`
	Tolerance *float64 `json:"tolerance,omitempty"`
}

// SeedRequest replaces a session's field.
type SeedRequest struct {
	Init      string  `json:"init,omitempty"`
	Seed      uint64  `json:"seed,omitempty"`
	Sigma     float64 `json:"sigma,omitempty"`
	FieldPath string  `json:"field_path,omitempty"`
}

// StepRequest carries optional step parameters.
type StepRequest struct {
	Lambda  *float64 `json:"lambda,omitempty"`
	Epsilon *float64 `json:"epsilon,omitempty"`
}

// RunRequest asks for up to Steps iterations.
type RunRequest struct {
	Steps   int      `json:"steps,omitempty"`
	Lambda  *float64 `json:"lambda,omitempty"`
	Epsilon *float64 `json:"epsilon,omitempty"`
	// Trace records the total energy of every step.
	Trace bool `json:"trace,omitempty"`
}

// ContourRequest selects the level and optional rendering of a contour.
type ContourRequest struct {
	Threshold *float64 `json:"threshold,omitempty"`
	// Simplify is a Douglas-Peucker tolerance in pixels; 0 keeps every point.
	Simplify float64 `json:"simplify,omitempty"`
	// MinArea drops enclosed shapes smaller than this many square pixels.
	MinArea float64  `json:"min_area,omitempty"`
	Overlay bool     `json:"overlay,omitempty"`
	Color   string   `json:"color,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Scale   int      `json:"scale,omitempty"`
}

// MaskRequest selects the level and scale of a mask image.
type MaskRequest struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Scale     int      `json:"scale,omitempty"`
}

// EvaluateRequest compares the session mask with a reference mask file.
type EvaluateRequest struct {
	MaskPath  string   `json:"mask_path"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// SessionInfo describes a session's current state.
type SessionInfo struct {
	ID          string              `json:"session_id"`
	Source      string              `json:"source"`
	Regularizer string              `json:"regularizer"`
	Height      int                 `json:"height"`
	Width       int                 `json:"width"`
	Threshold   float64             `json:"threshold"`
	State       segment.State       `json:"state"`
	Means       segment.RegionMeans `json:"means"`
	Stale       bool                `json:"stale"`
	Diagnostics segment.Diagnostics `json:"diagnostics"`
	Image       *imaging.ImageInfo  `json:"image"`
	Divergence  string              `json:"divergence,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// StepResult is one iteration's outcome.
type StepResult struct {
	SessionID string `json:"session_id"`
	segment.Snapshot
}

// RunResult summarises a run.
type RunResult struct {
	SessionID string            `json:"session_id"`
	Steps     int               `json:"steps"`
	State     segment.State     `json:"state"`
	StoppedBy string            `json:"stopped_by"`
	Energies  []float64         `json:"energies,omitempty"`
	Last      *segment.Snapshot `json:"last,omitempty"`
	Duration  string            `json:"duration"`
}

// ContourResult holds the boundary of the current segmentation.
type ContourResult struct {
	SessionID    string             `json:"session_id"`
	Threshold    float64            `json:"threshold"`
	InsidePixels int                `json:"inside_pixels"`
	Length       float64            `json:"length"`
	Paths        []segment.Path     `json:"paths"`
	Shapes       []segment.Shape    `json:"shapes"`
	Overlay      *imaging.PNGResult `json:"overlay,omitempty"`
}

// MaskResult holds the rendered mask.
type MaskResult struct {
	SessionID    string             `json:"session_id"`
	Threshold    float64            `json:"threshold"`
	InsidePixels int                `json:"inside_pixels"`
	Image        *imaging.PNGResult `json:"image"`
}

// EnergyResult holds the decomposed energy of the current field.
type EnergyResult struct {
	SessionID string              `json:"session_id"`
	Energy    segment.Energy      `json:"energy"`
	Means     segment.RegionMeans `json:"means"`
	// WasStale reports that the means were refreshed for this evaluation.
	WasStale bool `json:"was_stale"`
}

// SaveResult describes a persisted field.
type SaveResult struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Height    int    `json:"height"`
	Width     int    `json:"width"`
	Bytes     int64  `json:"bytes"`
}

// EvaluateResult is the overlap between the session mask and a reference.
type EvaluateResult struct {
	SessionID       string  `json:"session_id"`
	Threshold       float64 `json:"threshold"`
	Jaccard         float64 `json:"jaccard"`
	InsidePixels    int     `json:"inside_pixels"`
	ReferencePixels int     `json:"reference_pixels"`
}
