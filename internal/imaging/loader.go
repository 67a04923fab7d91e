package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// ImageCache provides thread-safe caching of decoded source images so that
// reopening a session on the same file skips the disk read.
//
// The cache stores decoded image.Image values keyed by their file path. The
// conversion to a normalised field.Image happens per request because the
// target size depends on the regularizer the session is opened with.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or Clear().
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or decodes it from disk if not cached.
//
// Supported formats are PNG, JPEG and GIF. EXIF orientation is applied so the
// pixel grid matches what a viewer shows.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len reports how many images are cached.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// ImageInfo describes a source file and the grid it was converted to.
type ImageInfo struct {
	// SourceWidth and SourceHeight are the decoded file dimensions.
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`

	// Width and Height are the dimensions of the normalised image.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Crop is the source rectangle the image was cut from, if any.
	Crop *Region `json:"crop,omitempty"`

	// Resized is true when the image was resampled to a requested size.
	Resized bool `json:"resized"`

	// Format is "png", "jpeg", "gif" or "unknown", from the file extension.
	Format string `json:"format"`

	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadOptions selects the part and size of the normalised image. A zero
// Height or Width keeps the (cropped) source size.
type LoadOptions struct {
	Height int
	Width  int

	// Crop selects a rectangle of the source before resampling. Region names
	// one as accepted by NamedRegion and applies when Crop is empty.
	Crop   Region
	Region string
}

func (o LoadOptions) crop(src image.Image) (image.Image, *Region, error) {
	r := o.Crop
	if r.Empty() {
		if o.Region == "" || o.Region == "full" {
			return src, nil, nil
		}
		b := src.Bounds()
		var err error
		if r, err = NamedRegion(o.Region, b.Dx(), b.Dy()); err != nil {
			return nil, nil, err
		}
	}
	out, err := Crop(src, r)
	if err != nil {
		return nil, nil, err
	}
	return out, &r, nil
}

// LoadField loads path through the cache and converts it to a grayscale
// field.Image with intensities in [0,1].
func (c *ImageCache) LoadField(path string, opts LoadOptions) (*field.Image, *ImageInfo, error) {
	src, err := c.Load(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	bounds := src.Bounds()
	cropped, region, err := opts.crop(src)
	if err != nil {
		return nil, nil, err
	}
	img, err := ToField(cropped, opts.Height, opts.Width)
	if err != nil {
		return nil, nil, err
	}

	cb := cropped.Bounds()
	return img, &ImageInfo{
		SourceWidth:   bounds.Dx(),
		SourceHeight:  bounds.Dy(),
		Width:         img.Width(),
		Height:        img.Height(),
		Crop:          region,
		Resized:       img.Width() != cb.Dx() || img.Height() != cb.Dy(),
		Format:        formatFromExt(path),
		FileSizeBytes: stat.Size(),
	}, nil
}

// ToField converts src to luminance divided by 255, resampling it with a
// Lanczos filter first when a target size is given.
func ToField(src image.Image, height, width int) (*field.Image, error) {
	gray := grayscale(src, height, width, imaging.Lanczos)
	b := gray.Bounds()
	data := make([]float64, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			data[y*b.Dx()+x] = float64(row[x*4]) / 255
		}
	}
	return field.NewImage(b.Dy(), b.Dx(), data)
}

// LoadMask reads a reference segmentation from path. Pixels brighter than
// mid-gray are inside. The mask is cropped like an image; a non-zero size
// resamples with nearest neighbour so labels are not blended.
func (c *ImageCache) LoadMask(path string, opts LoadOptions) (*field.Mask, error) {
	src, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	src, _, err = opts.crop(src)
	if err != nil {
		return nil, err
	}
	gray := grayscale(src, opts.Height, opts.Width, imaging.NearestNeighbor)
	b := gray.Bounds()
	m := &field.Mask{Height: b.Dy(), Width: b.Dx(), Bits: make([]bool, b.Dx()*b.Dy())}
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			m.Bits[y*b.Dx()+x] = row[x*4] > 127
		}
	}
	return m, nil
}

func grayscale(src image.Image, height, width int, filter imaging.ResampleFilter) *image.NRGBA {
	b := src.Bounds()
	if height > 0 && width > 0 && (b.Dx() != width || b.Dy() != height) {
		src = imaging.Resize(src, width, height, filter)
	}
	return imaging.Grayscale(src)
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	default:
		return "unknown"
	}
}
