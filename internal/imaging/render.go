package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/segment-mcp/internal/field"
	"github.com/ironsheep/segment-mcp/internal/segment"
)

// PNGResult contains a rendered image ready to return to a client.
type PNGResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// maxScale bounds the upscaling factor of rendered output.
const maxScale = 16

// RenderMask draws inside pixels white and outside pixels black, each
// enlarged to a scale×scale block.
func RenderMask(m *field.Mask, scale int) (*PNGResult, error) {
	if m == nil {
		return nil, fmt.Errorf("mask is required")
	}
	scale, err := checkScale(scale)
	if err != nil {
		return nil, err
	}
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, in := range m.Bits {
		if in {
			g.Pix[i] = 255
		}
	}
	var out image.Image = g
	if scale > 1 {
		out = imaging.Resize(g, m.Width*scale, m.Height*scale, imaging.NearestNeighbor)
	}
	return encodePNG(out)
}

// OverlayOptions controls how contour paths are drawn over the image.
type OverlayOptions struct {
	// Color is a hex colour such as "#ff0000".
	Color string
	// Opacity in [0,1] blends the line colour with the underlying pixel.
	Opacity float64
	// Scale enlarges the image before drawing so thin boundaries stay visible.
	Scale int
}

// DefaultOverlayOptions draws opaque red 1px lines at native size.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{Color: "#ff0000", Opacity: 1, Scale: 1}
}

// RenderOverlay draws the contour paths over the grayscale image.
func RenderOverlay(img *field.Image, paths []segment.Path, opts OverlayOptions) (*PNGResult, error) {
	if img == nil {
		return nil, fmt.Errorf("image is required")
	}
	line, err := colorful.Hex(opts.Color)
	if err != nil {
		return nil, fmt.Errorf("invalid overlay color %q: %w", opts.Color, err)
	}
	if opts.Opacity < 0 || opts.Opacity > 1 || math.IsNaN(opts.Opacity) {
		return nil, fmt.Errorf("opacity must be in [0,1], got %g", opts.Opacity)
	}
	scale, err := checkScale(opts.Scale)
	if err != nil {
		return nil, err
	}

	canvas := imaging.Resize(toGray(img), img.Width()*scale, img.Height()*scale, imaging.NearestNeighbor)
	plot := func(px, py int) {
		if px < 0 || py < 0 || px >= canvas.Bounds().Dx() || py >= canvas.Bounds().Dy() {
			return
		}
		i := canvas.PixOffset(px, py)
		under := colorful.Color{
			R: float64(canvas.Pix[i]) / 255,
			G: float64(canvas.Pix[i+1]) / 255,
			B: float64(canvas.Pix[i+2]) / 255,
		}
		r, g, b := under.BlendRgb(line, opts.Opacity).Clamped().RGB255()
		canvas.Pix[i], canvas.Pix[i+1], canvas.Pix[i+2], canvas.Pix[i+3] = r, g, b, 255
	}

	// Path coordinates are pixel centres; map them to the centre of the
	// enlarged block.
	toCanvas := func(v float64) float64 { return (v + 0.5) * float64(scale) }
	for _, p := range paths {
		for i := 1; i < len(p.Points); i++ {
			a, b := p.Points[i-1], p.Points[i]
			x0, y0 := toCanvas(a.X()), toCanvas(a.Y())
			x1, y1 := toCanvas(b.X()), toCanvas(b.Y())
			n := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
			for s := 0; s <= n; s++ {
				t := 0.0
				if n > 0 {
					t = float64(s) / float64(n)
				}
				plot(int(math.Floor(x0+t*(x1-x0))), int(math.Floor(y0+t*(y1-y0))))
			}
		}
	}
	return encodePNG(canvas)
}

func checkScale(scale int) (int, error) {
	if scale == 0 {
		return 1, nil
	}
	if scale < 1 || scale > maxScale {
		return 0, fmt.Errorf("scale must be in [1,%d], got %d", maxScale, scale)
	}
	return scale, nil
}

func encodePNG(img image.Image) (*PNGResult, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &PNGResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
