package transport

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/live-text-go/internal/config"
	apperrors "github.com/anime-shed/live-text-go/internal/errors"
	"github.com/anime-shed/live-text-go/internal/hub"
	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/internal/pipeline"
	"github.com/anime-shed/live-text-go/internal/service"
	"github.com/anime-shed/live-text-go/pkg/models"
)

const requestIDHeader = "X-Request-ID"

// DisplayView is the read side of the live display
type DisplayView interface {
	Snapshot(ctx context.Context) (models.DisplayState, error)
	SetViewport(ctx context.Context, vp models.Viewport) error
}

// MetricsSource reports aggregated frame counters
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

// PoolStatsSource reports recognition worker counters
type PoolStatsSource interface {
	Stats() pipeline.PoolStats
}

// Dependencies holds everything the HTTP layer serves. Display, Metrics,
// Pool and Hub may be nil when live scanning is disabled.
type Dependencies struct {
	Service service.RecognitionService
	Display DisplayView
	Metrics MetricsSource
	Pool    PoolStatsSource
	Hub     *hub.Hub
	Config  *config.Config
}

func NewHandler(deps Dependencies) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestID(),
		requestSizeLimiter(deps.Config.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/text", currentText(deps.Display, deps.Config))
	r.PUT("/viewport", setViewport(deps.Display, deps.Config))
	r.POST("/recognize", recognizeUpload(deps.Service, deps.Config))
	r.POST("/recognize/url", recognizeURL(deps.Service, deps.Config))
	r.GET("/metrics", metrics(deps))
	r.GET("/ws", streamEvents(deps.Hub))

	return r
}

func currentText(d DisplayView, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d == nil {
			respondError(c, http.StatusServiceUnavailable, "live scanning is disabled",
				apperrors.NewUnavailableError("no frame source configured", nil))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		state, err := d.Snapshot(ctx)
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "display unavailable", err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func setViewport(d DisplayView, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d == nil {
			respondError(c, http.StatusServiceUnavailable, "live scanning is disabled",
				apperrors.NewUnavailableError("no frame source configured", nil))
			return
		}

		var vp models.Viewport
		if err := c.ShouldBindJSON(&vp); err != nil {
			respondError(c, http.StatusBadRequest, "invalid viewport", err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		if err := d.SetViewport(ctx, vp); err != nil {
			respondError(c, http.StatusServiceUnavailable, "display unavailable", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"width":  vp.Width,
			"height": vp.Height,
		}).Info("Viewport updated")
		c.JSON(http.StatusOK, vp)
	}
}

func recognizeUpload(svc service.RecognitionService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "image too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "missing image file", err)
			return
		}

		f, err := file.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "unreadable image file", err)
			return
		}
		defer f.Close()

		img, format, err := image.Decode(f)
		if err != nil {
			respondError(c, http.StatusBadRequest, "unsupported image format",
				apperrors.NewValidationError("Image could not be decoded", err))
			return
		}

		vp, err := viewportFromForm(c, cfg)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid viewport", err)
			return
		}

		resp, err := svc.RecognizeImage(ctx, img, c.PostForm("expected_text"), vp)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "recognition failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"format":             format,
			"filename":           file.Filename,
			"candidates":         len(resp.Candidates),
			"selected":           resp.Selection != nil,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Upload recognized")

		c.JSON(http.StatusOK, resp)
	}
}

func recognizeURL(svc service.RecognitionService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.RecognizeURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Warn("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		if err := svc.ValidateImageURL(req.URL); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image URL", err)
			return
		}

		vp := models.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
		if req.ViewportWidth > 0 && req.ViewportHeight > 0 {
			vp = models.Viewport{Width: req.ViewportWidth, Height: req.ViewportHeight}
		}

		resp, err := svc.RecognizeURL(ctx, req.URL, req.ExpectedText, vp)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "recognition failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"url":                req.URL,
			"candidates":         len(resp.Candidates),
			"selected":           resp.Selection != nil,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("URL recognized")

		c.JSON(http.StatusOK, resp)
	}
}

func metrics(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{}
		if deps.Metrics != nil {
			body["frames"] = deps.Metrics.GetMetrics()
		}
		if deps.Pool != nil {
			body["pool"] = deps.Pool.Stats()
		}
		if deps.Hub != nil {
			body["viewers"] = deps.Hub.GetStats()
		}
		c.JSON(http.StatusOK, body)
	}
}

func streamEvents(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			respondError(c, http.StatusServiceUnavailable, "event stream is disabled",
				apperrors.NewUnavailableError("no frame source configured", nil))
			return
		}
		// the upgrader writes its own error response
		if err := h.ServeWS(c.Writer, c.Request); err != nil {
			logger.WithError(err).WithField("ip", c.ClientIP()).Warn("Websocket upgrade failed")
		}
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func viewportFromForm(c *gin.Context, cfg *config.Config) (models.Viewport, error) {
	vp := models.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	w, h := c.PostForm("viewport_width"), c.PostForm("viewport_height")
	if w == "" && h == "" {
		return vp, nil
	}

	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return vp, apperrors.NewValidationError("viewport_width and viewport_height must be positive integers", nil)
	}
	return models.Viewport{Width: width, Height: height}, nil
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
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
			err := c.Errors.Last().Err
			code := determineStatusCode(err)
			if code == http.StatusInternalServerError && !apperrors.IsType(err, apperrors.ErrorTypeInternal) {
				err = apperrors.NewInternalError("unexpected error", err)
			}
			respondError(c, code, "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	requestID := c.GetString("request_id")

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
		"request_id":  requestID,
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:     http.StatusText(code),
		Message:   fmt.Sprintf("%s: %v", message, err),
		RequestID: requestID,
	})
}
