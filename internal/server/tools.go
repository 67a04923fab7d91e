package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var sessionIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Session handle returned by segment_open",
}

var thresholdProperty = map[string]interface{}{
	"type":        "number",
	"description": "Level in [0,1]; pixels with u > threshold are inside. Defaults to the session threshold",
	"minimum":     0,
	"maximum":     1,
}

var lambdaProperty = map[string]interface{}{
	"type":        "number",
	"description": "Regularization weight (>= 0). Defaults to SEGMENT_LAMBDA",
	"minimum":     0,
}

var epsilonProperty = map[string]interface{}{
	"type":        "number",
	"description": "Step size (> 0). Defaults to SEGMENT_EPSILON",
}

var initProperties = map[string]interface{}{
	"init": map[string]interface{}{
		"type":        "string",
		"enum":        []string{"random", "intensity", "file"},
		"description": "Initial field: uniform random, smoothed image intensity, or a saved field file. Default random",
	},
	"seed": map[string]interface{}{
		"type":        "integer",
		"description": "Random seed for init=random; 0 draws a fresh field",
	},
	"sigma": map[string]interface{}{
		"type":        "number",
		"description": "Gaussian radius for init=intensity; 0 uses the raw image",
	},
	"field_path": map[string]interface{}{
		"type":        "string",
		"description": "Field file written by segment_save_field, for init=file",
	},
}

func sessionOnly() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": sessionIDProperty,
		},
		"required": []string{"session_id"},
	}
}

func withInit(props map[string]interface{}) map[string]interface{} {
	for k, v := range initProperties {
		props[k] = v
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Session lifecycle
		{
			Name:        "segment_open",
			Description: "Load an image (converted to grayscale in [0,1]) and start a two-phase segmentation session. Returns the session handle, image size and initial region means.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withInit(map[string]interface{}{
					"image_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to a PNG, JPEG or GIF image",
					},
					"regularizer": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"classical", "learned"},
						"description": "classical = smoothed total variation; learned = the configured ConvNet prior. Default classical",
					},
					"region": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"full", "top-left", "top-right", "bottom-left", "bottom-right", "top-half", "bottom-half", "left-half", "right-half", "center"},
						"description": "Segment only a named part of the image. Ignored when crop is given",
					},
					"crop": map[string]interface{}{
						"type":        "object",
						"description": "Pixel rectangle [x1,x2) x [y1,y2) of the source image to segment",
						"properties": map[string]interface{}{
							"x1": map[string]interface{}{"type": "integer"},
							"y1": map[string]interface{}{"type": "integer"},
							"x2": map[string]interface{}{"type": "integer"},
							"y2": map[string]interface{}{"type": "integer"},
						},
						"required": []string{"x1", "y1", "x2", "y2"},
					},
					"threshold": thresholdProperty,
					"clip_norm": map[string]interface{}{
						"type":        "number",
						"description": "Clip the gradient L2 norm to this value before each step; 0 disables clipping",
					},
					"tolerance": map[string]interface{}{
						"type":        "number",
						"description": "Stop runs once the largest pixel change of a step falls below this; 0 disables",
					},
				}),
				"required": []string{"image_path"},
			},
		},
		{
			Name:        "segment_seed",
			Description: "Replace the session's level-set field and recompute the region means.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withInit(map[string]interface{}{
					"session_id": sessionIDProperty,
				}),
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "segment_set_threshold",
			Description: "Change the partition threshold. Region means become stale and are refreshed before the next step.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"threshold":  thresholdProperty,
				},
				"required": []string{"session_id", "threshold"},
			},
		},
		{
			Name:        "segment_info",
			Description: "Report the session state, threshold, region means and diagnostics counters.",
			InputSchema: sessionOnly(),
		},
		{
			Name:        "segment_close",
			Description: "Discard a session and free its memory.",
			InputSchema: sessionOnly(),
		},

		// Descent
		{
			Name:        "segment_step",
			Description: "Perform one gradient-descent step on data fitting + lambda * regularizer. Returns the energy before the step, gradient norm and largest pixel change.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"lambda":     lambdaProperty,
					"epsilon":    epsilonProperty,
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "segment_run",
			Description: "Perform up to N descent steps. Stops early on convergence, divergence or the run timeout.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"steps": map[string]interface{}{
						"type":        "integer",
						"description": "Number of steps. Defaults to SEGMENT_STEPS, capped by SEGMENT_MAX_STEPS",
					},
					"lambda":  lambdaProperty,
					"epsilon": epsilonProperty,
					"trace": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the total energy of every step",
					},
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "segment_energy",
			Description: "Evaluate the data, penalty and total energy of the current field without stepping.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"lambda":     lambdaProperty,
				},
				"required": []string{"session_id"},
			},
		},

		// Results
		{
			Name:        "segment_contour",
			Description: "Extract the boundary {u = threshold} as polylines in pixel coordinates with area, centroid and circularity of each enclosed shape, optionally simplified and drawn over the image as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"threshold":  thresholdProperty,
					"simplify": map[string]interface{}{
						"type":        "number",
						"description": "Douglas-Peucker tolerance in pixels; 0 keeps every point",
					},
					"min_area": map[string]interface{}{
						"type":        "number",
						"description": "Only report enclosed shapes of at least this many square pixels",
					},
					"overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Also render the contour over the image",
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Overlay line color as hex. Default #ff0000",
					},
					"opacity": map[string]interface{}{
						"type":        "number",
						"description": "Overlay line opacity in [0,1]. Default 1",
					},
					"scale": map[string]interface{}{
						"type":        "integer",
						"description": "Integer upscaling factor for the overlay (1-16). Default 1",
					},
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "segment_mask",
			Description: "Render the binary mask {u > threshold} as a base64 PNG (inside white).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"threshold":  thresholdProperty,
					"scale": map[string]interface{}{
						"type":        "integer",
						"description": "Integer upscaling factor (1-16). Default 1",
					},
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "segment_save_field",
			Description: "Write the current level-set field to a file that segment_seed or segment_open can load back.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Destination file path",
					},
				},
				"required": []string{"session_id", "path"},
			},
		},
		{
			Name:        "segment_evaluate",
			Description: "Compare the session mask with a reference mask image using the Jaccard index (intersection over union).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"mask_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the reference mask image; bright pixels are inside",
					},
					"threshold": thresholdProperty,
				},
				"required": []string{"session_id", "mask_path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
