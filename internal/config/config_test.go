package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"SEGMENT_LAMBDA", "SEGMENT_EPSILON", "SEGMENT_THRESHOLD", "SEGMENT_STEPS",
		"SEGMENT_MAX_STEPS", "SEGMENT_RUN_TIMEOUT", "SEGMENT_MODEL_PATH", "PORT", "HOST",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Lambda != 1 || cfg.Epsilon != 0.1 || cfg.Threshold != 0.5 || cfg.Steps != 100 {
		t.Errorf("unexpected descent defaults: %+v", cfg)
	}
	if cfg.RunTimeout != 60*time.Second {
		t.Errorf("RunTimeout: got %s, want 1m0s", cfg.RunTimeout)
	}
	if cfg.ModelPath != "" {
		t.Errorf("ModelPath: got %q, want empty", cfg.ModelPath)
	}
	if got := cfg.ServerAddress(); got != "0.0.0.0:8080" {
		t.Errorf("ServerAddress: got %q", got)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SEGMENT_LAMBDA", "0")
	t.Setenv("SEGMENT_EPSILON", " 0.01 ")
	t.Setenv("SEGMENT_CLIP_NORM", "5")
	t.Setenv("SEGMENT_RUN_TIMEOUT", "2s")
	t.Setenv("SEGMENT_WORKERS", "4")
	t.Setenv("PORT", "9090")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Lambda != 0 || cfg.Epsilon != 0.01 || cfg.ClipNorm != 5 || cfg.Workers != 4 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RunTimeout != 2*time.Second {
		t.Errorf("RunTimeout: got %s, want 2s", cfg.RunTimeout)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port: got %q", cfg.Port)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"PORT", "http", "PORT"},
		{"SEGMENT_LAMBDA", "-1", "SEGMENT_LAMBDA"},
		{"SEGMENT_EPSILON", "0", "SEGMENT_EPSILON"},
		{"SEGMENT_THRESHOLD", "1.5", "SEGMENT_THRESHOLD"},
		{"SEGMENT_STEPS", "20000", "SEGMENT_STEPS"},
		{"SEGMENT_TV_BETA", "-0.1", "SEGMENT_TV_BETA"},
		{"SEGMENT_WORKERS", "-2", "SEGMENT_WORKERS"},
		{"MAX_REQUEST_BODY_SIZE", "0", "MAX_REQUEST_BODY_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("%s=%s: expected an error", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not name %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("SEGMENT_LAMBDA", "lots")
	t.Setenv("SEGMENT_RUN_TIMEOUT", "-5s")
	if got := parseFloatOrDefault("SEGMENT_LAMBDA", 2); got != 2 {
		t.Errorf("parseFloatOrDefault: got %g, want 2", got)
	}
	if got := parseDurationOrDefault("SEGMENT_RUN_TIMEOUT", time.Second); got != time.Second {
		t.Errorf("parseDurationOrDefault: got %s, want 1s", got)
	}
}
