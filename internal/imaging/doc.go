// Package imaging is the image provider for segmentation sessions.
//
// It turns files on disk into the normalised grayscale field.Image the
// segmentation core works on, builds intensity-based initial fields, and
// renders results (masks and contour overlays) back to PNG for clients.
//
// # Normalisation
//
// Source images of any supported format (PNG, JPEG, GIF) are converted to
// luminance and divided by 255, so every pixel lies in [0,1]. When a learned
// regularizer declares a fixed input size, the image is resampled to that size
// with a Lanczos filter before conversion. Reference masks are resampled with
// nearest neighbour so labels stay binary.
//
// # Regions
//
// A session can be restricted to part of the source with a pixel Region or a
// named one (quadrants, halves, center). Cropping happens before resampling,
// and reference masks are cut from the same rectangle.
//
// # Coordinate System
//
// Pixel (0,0) is the top-left corner; X increases rightward (columns) and Y
// downward (rows). Contour points use the same axes with pixel centres at
// integer coordinates.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The conversion and rendering
// functions are stateless and can be called concurrently.
//
// # Output
//
// Rendered images are returned as base64-encoded PNG in a PNGResult, the
// format MCP clients expect for image content.
package imaging
