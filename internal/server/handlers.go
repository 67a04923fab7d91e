package server

import (
	"encoding/json"
	"fmt"

	"github.com/ironsheep/segment-mcp/internal/service"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "segment_open", "segment_step").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorData is the data member of a failed tool call. Type mirrors the
// engine's error kinds so clients can tell a bad argument from a diverged
// session.
type ToolErrorData struct {
	Type    service.ErrorType `json:"type"`
	Message string            `json:"message"`
	Detail  string            `json:"detail"`
	Step    int               `json:"step,omitempty"`
	Pixel   int               `json:"pixel,omitempty"`
	// Run holds the steps a failed run completed before the error.
	Run *service.RunResult `json:"run,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// and a ToolErrorData payload.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		appErr := service.Classify(err)
		s.log.WithError(err).WithField("tool", params.Name).Warn("Tool execution failed")
		data := ToolErrorData{
			Type:    appErr.Type,
			Message: appErr.Message,
			Detail:  err.Error(),
			Step:    appErr.Step,
			Pixel:   appErr.Pixel,
		}
		if run, ok := result.(*service.RunResult); ok && run != nil {
			data.Run = run
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", data)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Session lifecycle
	case "segment_open":
		return s.handleOpen(args)
	case "segment_seed":
		return s.handleSeed(args)
	case "segment_set_threshold":
		return s.handleSetThreshold(args)
	case "segment_info":
		return s.handleInfo(args)
	case "segment_close":
		return s.handleClose(args)

	// Descent
	case "segment_step":
		return s.handleStep(args)
	case "segment_run":
		return s.handleRun(args)
	case "segment_energy":
		return s.handleEnergy(args)

	// Results
	case "segment_contour":
		return s.handleContour(args)
	case "segment_mask":
		return s.handleMask(args)
	case "segment_save_field":
		return s.handleSaveField(args)
	case "segment_evaluate":
		return s.handleEvaluate(args)

	default:
		return nil, service.NewValidationError(fmt.Sprintf("unknown tool: %s", name), nil)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, reporting malformed JSON as a
// validation error.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return service.NewValidationError("invalid arguments", err)
	}
	return nil
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

func (a sessionArgs) check() error {
	if a.SessionID == "" {
		return service.NewValidationError("session_id is required", nil)
	}
	return nil
}

// === Session Lifecycle Handlers ===

func (s *Server) handleOpen(args json.RawMessage) (interface{}, error) {
	var a service.OpenRequest
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.manager.Open(a)
}

type seedArgs struct {
	sessionArgs
	service.SeedRequest
}

func (s *Server) handleSeed(args json.RawMessage) (interface{}, error) {
	var a seedArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Seed(a.SessionID, a.SeedRequest)
}

type setThresholdArgs struct {
	sessionArgs
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleSetThreshold(args json.RawMessage) (interface{}, error) {
	var a setThresholdArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if a.Threshold == nil {
		return nil, service.NewValidationError("threshold is required", nil)
	}
	return s.manager.SetThreshold(a.SessionID, *a.Threshold)
}

func (s *Server) handleInfo(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Info(a.SessionID)
}

func (s *Server) handleClose(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := s.manager.Close(a.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"session_id": a.SessionID, "closed": true}, nil
}

// === Descent Handlers ===

type stepArgs struct {
	sessionArgs
	service.StepRequest
}

func (s *Server) handleStep(args json.RawMessage) (interface{}, error) {
	var a stepArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Step(a.SessionID, a.StepRequest)
}

type runArgs struct {
	sessionArgs
	service.RunRequest
}

func (s *Server) handleRun(args json.RawMessage) (interface{}, error) {
	var a runArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Run(s.ctx, a.SessionID, a.RunRequest)
}

type energyArgs struct {
	sessionArgs
	Lambda *float64 `json:"lambda"`
}

func (s *Server) handleEnergy(args json.RawMessage) (interface{}, error) {
	var a energyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Energy(a.SessionID, a.Lambda)
}

// === Result Handlers ===

type contourArgs struct {
	sessionArgs
	service.ContourRequest
}

func (s *Server) handleContour(args json.RawMessage) (interface{}, error) {
	var a contourArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Contour(a.SessionID, a.ContourRequest)
}

type maskArgs struct {
	sessionArgs
	service.MaskRequest
}

func (s *Server) handleMask(args json.RawMessage) (interface{}, error) {
	var a maskArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Mask(a.SessionID, a.MaskRequest)
}

type saveFieldArgs struct {
	sessionArgs
	Path string `json:"path"`
}

func (s *Server) handleSaveField(args json.RawMessage) (interface{}, error) {
	var a saveFieldArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.SaveField(a.SessionID, a.Path)
}

type evaluateArgs struct {
	sessionArgs
	service.EvaluateRequest
}

func (s *Server) handleEvaluate(args json.RawMessage) (interface{}, error) {
	var a evaluateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return s.manager.Evaluate(a.SessionID, a.EvaluateRequest)
}
