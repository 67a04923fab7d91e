package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"segment_open",
		"segment_seed",
		"segment_set_threshold",
		"segment_info",
		"segment_close",
		"segment_step",
		"segment_run",
		"segment_energy",
		"segment_contour",
		"segment_mask",
		"segment_save_field",
		"segment_evaluate",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("Duplicate tool %s", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties should be a map")
			}
			required, ok := tool.InputSchema["required"].([]string)
			if !ok {
				t.Fatal("InputSchema required should be a string slice")
			}

			// Every required field must be declared
			for _, name := range required {
				if _, ok := props[name]; !ok {
					t.Errorf("required field %s not in properties", name)
				}
			}
		})
	}
}

func TestToolDefinitions_SessionTools(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		if tool.Name == "segment_open" {
			continue
		}
		required := tool.InputSchema["required"].([]string)
		if len(required) == 0 || required[0] != "session_id" {
			t.Errorf("%s should require session_id first, got %v", tool.Name, required)
		}
	}
}
