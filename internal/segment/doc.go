// Package segment implements region-based active-contour segmentation.
//
// A level-set field u evolves over the image by gradient descent on
//
//	E(u) = Σ H(u-t)·(I-c_in)² + (1-H(u-t))·(I-c_out)² + λ·R(u)
//
// where t is the threshold, H a smoothed indicator, c_in and c_out the mean
// intensities of {u > t} and {u <= t}, and R a Regularizer.
//
// # Components
//
//   - ComputeRegionMeans: the two representative intensities. The partition is
//     strict (u > t is inside); an empty region falls back to the image mean.
//   - DataFitting: the data term and its analytic gradient.
//   - Regularizer: the penalty capability. TotalVariation is the classical,
//     closed-form variant; Learned wraps a pre-trained Prior such as ConvNet.
//   - Minimizer: one descent step u - ε·∇E(u), with optional gradient clipping
//     and detection of non-finite values.
//   - Session: owns the image, field, threshold, means and regularizer and
//     drives Step and Run.
//   - ExtractContour: marching-squares boundary and mask at a threshold;
//     Contour.Shapes measures the closed paths.
//
// # Statistics ordering
//
// The region means are recomputed before a step whenever they are stale, that
// is after the previous step, a threshold change, or a reseed. Each step
// therefore uses means that match the field it starts from.
//
// # Gradient clipping
//
// Steps do not clip unless the Minimizer's ClipNorm is set. Clipping applies
// to the raw gradient, before scaling by ε.
//
// # Concurrency
//
// Iteration k+1 depends on iteration k, so steps never run in parallel. Work
// inside a step is split across goroutines by row blocks. Images and priors are
// read-only and can be shared between sessions; a Session itself must not be
// used from several goroutines at once.
package segment
