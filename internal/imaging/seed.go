package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// IntensitySeed builds an initial level-set field from the image itself:
// bright pixels start inside, dark ones outside. A positive sigma smooths the
// intensities with a Gaussian of that radius first so noise does not
// fragment the initial partition.
func IntensitySeed(img *field.Image, sigma float64) *field.Field {
	if sigma <= 0 {
		return img.AsField()
	}

	blurred := blur.Gaussian(toGray(img), sigma)
	u := field.New(img.Height(), img.Width())
	b := blurred.Bounds()
	for y := 0; y < img.Height(); y++ {
		for x := 0; x < img.Width(); x++ {
			g := color.GrayModel.Convert(blurred.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			u.Set(y, x, float64(g.Y)/255)
		}
	}
	return u
}

// toGray quantises a normalised image to 8-bit gray.
func toGray(img *field.Image) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, img.Width(), img.Height()))
	for y := 0; y < img.Height(); y++ {
		for x := 0; x < img.Width(); x++ {
			g.Pix[y*g.Stride+x] = uint8(math.Round(img.At(y, x) * 255))
		}
	}
	return g
}
