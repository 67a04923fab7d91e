// Package field provides the dense 2-D arrays the segmentation engine works on.
//
// Three types live here:
//   - Field: the evolving real-valued level-set function u. Values are not
//     constrained to [0,1]; descent steps may move them anywhere on the real line.
//   - Image: a read-only grid of normalised intensities in [0,1]. An Image may be
//     shared by any number of sessions.
//   - Mask: a binary segmentation obtained by thresholding a Field.
//
// # Layout
//
// All grids are stored row-major in a single []float64 (or []bool for masks).
// Pixel (y, x) lives at index y*width + x, with (0,0) at the top-left corner,
// X increasing rightward and Y increasing downward, matching the imaging package.
//
// # Concurrency
//
// Field and Mask are not safe for concurrent mutation. ForRows splits independent
// per-pixel work across goroutines by row blocks; callers must make sure each
// block only writes to its own rows.
//
// # Persistence
//
// Fields are exchanged with collaborators as raw numeric arrays. WriteTo and
// ReadFrom use the gonum mat binary encoding, which stores the shape alongside
// the values so a reader can reject arrays that do not match the image.
package field
