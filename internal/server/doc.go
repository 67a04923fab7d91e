// Package server implements the MCP (Model Context Protocol) server for
// level-set image segmentation.
//
// This package provides a JSON-RPC 2.0 server that lets MCP clients drive
// segmentation sessions step by step: open an image, choose a regularizer,
// iterate the descent, and read back contours, masks and energies.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Session lifecycle:
//   - segment_open: Load an image (or a region of it) and create a session
//   - segment_seed: Replace the level-set field (random, intensity, file)
//   - segment_set_threshold: Move the partition threshold
//   - segment_info: Session state and diagnostics
//   - segment_close: Discard a session
//
// Descent:
//   - segment_step: One gradient-descent step
//   - segment_run: Up to N steps with early stop
//   - segment_energy: Evaluate the energy without stepping
//
// Results:
//   - segment_contour: Boundary polylines and shape measurements, optional PNG overlay
//   - segment_mask: Binary mask as PNG
//   - segment_save_field: Persist the field
//   - segment_evaluate: Jaccard index against a reference mask
//
// # Sessions
//
// Sessions live in a service.Manager and are addressed by the handle
// segment_open returns. Calls on the same session are serialised; the
// server keeps no other state between calls.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and a ToolErrorData payload whose type is one of validation,
// not_found, diverged, stale_statistics or internal. A diverged error also
// carries the failing step and pixel index.
//
// # Usage
//
//	mgr, err := service.NewManager(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := server.New(mgr)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
