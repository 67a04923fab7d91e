package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ironsheep/segment-mcp/internal/field"
	"github.com/ironsheep/segment-mcp/internal/segment"
)

func TestClassify(t *testing.T) {
	img, err := field.ImageFromRows([][]float64{{0, 1}})
	if err != nil {
		t.Fatalf("ImageFromRows failed: %v", err)
	}
	_, precondition := segment.ComputeRegionMeans(field.New(3, 3), img, 0.5)

	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("bad", nil), ErrorTypeValidation, http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("lookup: %w", NewNotFoundError("gone", nil)), ErrorTypeNotFound, http.StatusNotFound},
		{"engine precondition", precondition, ErrorTypeValidation, http.StatusBadRequest},
		{"engine diverged", &segment.Error{Kind: segment.KindDiverged, Step: 3, Index: 7}, ErrorTypeDiverged, http.StatusUnprocessableEntity},
		{"engine stale", &segment.Error{Kind: segment.KindStaleStatistics, Message: "stale"}, ErrorTypeStale, http.StatusConflict},
		{"unknown", errors.New("disk on fire"), ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Type != tt.wantType || got.StatusCode != tt.wantStatus {
				t.Errorf("got %s/%d, want %s/%d", got.Type, got.StatusCode, tt.wantType, tt.wantStatus)
			}
			if GetStatusCode(tt.err) != tt.wantStatus {
				t.Errorf("GetStatusCode: got %d", GetStatusCode(tt.err))
			}
		})
	}

	if Classify(nil) != nil || IsType(nil, ErrorTypeInternal) || GetStatusCode(nil) != http.StatusOK {
		t.Error("nil errors should classify as success")
	}
}
