// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the descent defaults shared by both drivers and the HTTP
// listener settings.
type Config struct {
	// Lambda and Epsilon are the step parameters used when a request omits them.
	Lambda  float64
	Epsilon float64
	// Threshold is the initial partition threshold of new sessions.
	Threshold float64
	// Steps is the default run length; MaxSteps caps any single run request.
	Steps    int
	MaxSteps int

	HeavisideWidth float64
	TVBeta         float64
	ClipNorm       float64
	Tolerance      float64
	Workers        int

	// ModelPath points at ConvNet weights; empty disables the learned regularizer.
	ModelPath  string
	RunTimeout time.Duration

	Host               string
	Port               string
	MaxRequestBodySize int64
	LogLevel           string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Lambda:             parseFloatOrDefault("SEGMENT_LAMBDA", 1),
		Epsilon:            parseFloatOrDefault("SEGMENT_EPSILON", 0.1),
		Threshold:          parseFloatOrDefault("SEGMENT_THRESHOLD", 0.5),
		Steps:              int(parseIntOrDefault("SEGMENT_STEPS", 100)),
		MaxSteps:           int(parseIntOrDefault("SEGMENT_MAX_STEPS", 10000)),
		HeavisideWidth:     parseFloatOrDefault("SEGMENT_HEAVISIDE_WIDTH", 0.1),
		TVBeta:             parseFloatOrDefault("SEGMENT_TV_BETA", 0.1),
		ClipNorm:           parseFloatOrDefault("SEGMENT_CLIP_NORM", 0),
		Tolerance:          parseFloatOrDefault("SEGMENT_TOLERANCE", 0),
		Workers:            int(parseIntOrDefault("SEGMENT_WORKERS", 0)),
		ModelPath:          strings.TrimSpace(os.Getenv("SEGMENT_MODEL_PATH")),
		RunTimeout:         parseDurationOrDefault("SEGMENT_RUN_TIMEOUT", 60*time.Second),
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges the segmentation core would otherwise reject later.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if !finite(c.Lambda) || c.Lambda < 0 {
		return fmt.Errorf("SEGMENT_LAMBDA must be a finite value >= 0 (got %g)", c.Lambda)
	}
	if !finite(c.Epsilon) || c.Epsilon <= 0 {
		return fmt.Errorf("SEGMENT_EPSILON must be > 0 (got %g)", c.Epsilon)
	}
	if !finite(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("SEGMENT_THRESHOLD must be in [0,1] (got %g)", c.Threshold)
	}
	if c.Steps < 0 || c.MaxSteps <= 0 || c.Steps > c.MaxSteps {
		return fmt.Errorf("SEGMENT_STEPS must be in [0, SEGMENT_MAX_STEPS] (got steps=%d, max=%d)", c.Steps, c.MaxSteps)
	}
	if !finite(c.HeavisideWidth) || c.HeavisideWidth <= 0 {
		return fmt.Errorf("SEGMENT_HEAVISIDE_WIDTH must be > 0 (got %g)", c.HeavisideWidth)
	}
	if !finite(c.TVBeta) || c.TVBeta <= 0 {
		return fmt.Errorf("SEGMENT_TV_BETA must be > 0 (got %g)", c.TVBeta)
	}
	if !finite(c.ClipNorm) || c.ClipNorm < 0 || !finite(c.Tolerance) || c.Tolerance < 0 {
		return fmt.Errorf("SEGMENT_CLIP_NORM and SEGMENT_TOLERANCE must be >= 0 (got %g, %g)", c.ClipNorm, c.Tolerance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("SEGMENT_WORKERS must be >= 0 (got %d)", c.Workers)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("SEGMENT_RUN_TIMEOUT must be > 0 (got %s)", c.RunTimeout)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
