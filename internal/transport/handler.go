package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segment-mcp/internal/config"
	"github.com/ironsheep/segment-mcp/internal/logger"
	"github.com/ironsheep/segment-mcp/internal/service"
)

// Version is reported by the health check.
var Version = "0.1.0"

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Type    service.ErrorType `json:"type,omitempty"`
	Step    int               `json:"step,omitempty"`
	Pixel   int               `json:"pixel,omitempty"`
	// Run holds the steps a failed run completed before the error.
	Run *service.RunResult `json:"run,omitempty"`
}

type thresholdRequest struct {
	Threshold *float64 `json:"threshold" binding:"required"`
}

type energyQuery struct {
	Lambda *float64 `form:"lambda"`
}

type contourQuery struct {
	Threshold *float64 `form:"threshold"`
	Simplify  float64  `form:"simplify"`
	MinArea   float64  `form:"min_area"`
	Overlay   bool     `form:"overlay"`
	Color     string   `form:"color"`
	Opacity   *float64 `form:"opacity"`
	Scale     int      `form:"scale"`
}

type maskQuery struct {
	Threshold *float64 `form:"threshold"`
	Scale     int      `form:"scale"`
}

type saveRequest struct {
	Path string `json:"path" binding:"required"`
}

// NewHandler exposes the session manager over HTTP.
func NewHandler(mgr *service.Manager, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck(mgr))

	sessions := r.Group("/sessions")
	sessions.GET("", listSessions(mgr))
	sessions.POST("", openSession(mgr))
	sessions.GET("/:id", sessionInfo(mgr))
	sessions.DELETE("/:id", closeSession(mgr))
	sessions.POST("/:id/seed", seedSession(mgr))
	sessions.PUT("/:id/threshold", setThreshold(mgr))
	sessions.POST("/:id/step", stepSession(mgr))
	sessions.POST("/:id/run", runSession(mgr))
	sessions.GET("/:id/energy", sessionEnergy(mgr))
	sessions.GET("/:id/contour", sessionContour(mgr))
	sessions.GET("/:id/mask", sessionMask(mgr))
	sessions.POST("/:id/save", saveField(mgr))
	sessions.POST("/:id/evaluate", evaluateSession(mgr))

	return r
}

func healthCheck(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "available",
			"version":  Version,
			"sessions": mgr.Len(),
			"learned":  mgr.HasModel(),
			"time":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func listSessions(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": mgr.List()})
	}
}

func openSession(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.OpenRequest
		if !bindJSON(c, &req, true) {
			return
		}
		info, err := mgr.Open(req)
		if err != nil {
			respondServiceError(c, "failed to open session", err)
			return
		}
		c.JSON(http.StatusCreated, info)
	}
}

func sessionInfo(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := mgr.Info(c.Param("id"))
		if err != nil {
			respondServiceError(c, "failed to read session", err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func closeSession(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := mgr.Close(id); err != nil {
			respondServiceError(c, "failed to close session", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": id, "closed": true})
	}
}

func seedSession(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.SeedRequest
		if !bindJSON(c, &req, false) {
			return
		}
		info, err := mgr.Seed(c.Param("id"), req)
		if err != nil {
			respondServiceError(c, "failed to seed session", err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func setThreshold(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req thresholdRequest
		if !bindJSON(c, &req, true) {
			return
		}
		info, err := mgr.SetThreshold(c.Param("id"), *req.Threshold)
		if err != nil {
			respondServiceError(c, "failed to set threshold", err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func stepSession(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.StepRequest
		if !bindJSON(c, &req, false) {
			return
		}
		res, err := mgr.Step(c.Param("id"), req)
		if err != nil {
			respondServiceError(c, "step failed", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func runSession(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.RunRequest
		if !bindJSON(c, &req, false) {
			return
		}
		res, err := mgr.Run(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			code, body := serviceErrorResponse(c, "run failed", err)
			body.Run = res
			c.AbortWithStatusJSON(code, body)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func sessionEnergy(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q energyQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, http.StatusBadRequest, "invalid query", err)
			return
		}
		res, err := mgr.Energy(c.Param("id"), q.Lambda)
		if err != nil {
			respondServiceError(c, "failed to evaluate energy", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func sessionContour(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q contourQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, http.StatusBadRequest, "invalid query", err)
			return
		}
		res, err := mgr.Contour(c.Param("id"), service.ContourRequest{
			Threshold: q.Threshold,
			Simplify:  q.Simplify,
			MinArea:   q.MinArea,
			Overlay:   q.Overlay,
			Color:     q.Color,
			Opacity:   q.Opacity,
			Scale:     q.Scale,
		})
		if err != nil {
			respondServiceError(c, "failed to extract contour", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func sessionMask(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q maskQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, http.StatusBadRequest, "invalid query", err)
			return
		}
		res, err := mgr.Mask(c.Param("id"), service.MaskRequest{Threshold: q.Threshold, Scale: q.Scale})
		if err != nil {
			respondServiceError(c, "failed to render mask", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func saveField(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveRequest
		if !bindJSON(c, &req, true) {
			return
		}
		res, err := mgr.SaveField(c.Param("id"), req.Path)
		if err != nil {
			respondServiceError(c, "failed to save field", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func evaluateSession(mgr *service.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.EvaluateRequest
		if !bindJSON(c, &req, true) {
			return
		}
		res, err := mgr.Evaluate(c.Param("id"), req)
		if err != nil {
			respondServiceError(c, "failed to evaluate session", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// bindJSON decodes the request body into v. An empty body is accepted when
// the body is optional. It reports false after responding with an error.
func bindJSON(c *gin.Context, v interface{}, required bool) bool {
	err := c.ShouldBindJSON(v)
	if err == nil || (!required && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "request body too large", err)
		return false
	}
	logger.WithError(err).WithField("ip", c.ClientIP()).Error("Invalid request format")
	respondError(c, http.StatusBadRequest, "invalid request format", err)
	return false
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.FullPath(),
			"status":             c.Writer.Status(),
			"ip":                 c.ClientIP(),
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Handled request")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondServiceError(c, "request processing failed", err.Err)
		}
	}
}

func respondServiceError(c *gin.Context, message string, err error) {
	c.AbortWithStatusJSON(serviceErrorResponse(c, message, err))
}

// serviceErrorResponse logs a failed service call and builds its error body.
func serviceErrorResponse(c *gin.Context, message string, err error) (int, ErrorResponse) {
	appErr := service.Classify(err)
	code := appErr.StatusCode

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"type":        appErr.Type,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
	}).Warn("Request failed")

	return code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
		Type:    appErr.Type,
		Step:    appErr.Step,
		Pixel:   appErr.Pixel,
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
