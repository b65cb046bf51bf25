package transport

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
	"github.com/anime-shed/profile-image-analyzer/internal/config"
	apperrors "github.com/anime-shed/profile-image-analyzer/internal/errors"
	"github.com/anime-shed/profile-image-analyzer/internal/logger"
	"github.com/anime-shed/profile-image-analyzer/internal/service"
	"github.com/anime-shed/profile-image-analyzer/internal/strategy"
	"github.com/anime-shed/profile-image-analyzer/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const missingURLMessage = "Missing 'image_url' in request body"

func NewHandler(svc service.ImageAnalysisService, cfg *config.Config) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		errorHandler(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
	)

	// Configure routes
	r.GET("/health", healthCheck)

	images := r.Group("/api/images")
	{
		images.POST("/analyze", analyzeImage(svc, cfg))
		images.POST("/analyze-upload", analyzeUpload(svc, cfg))
		images.POST("/nsfw-check", nsfwCheck(svc, cfg))
		images.POST("/nsfw-check-upload", nsfwCheckUpload(svc, cfg))
		images.GET("/health", imagesHealth(svc))
	}

	return r
}

func analyzeImage(svc service.ImageAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageURL, ok := bindImageURL(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := svc.AnalyzeURL(ctx, imageURL, analyzer.DefaultOptions())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func analyzeUpload(svc service.ImageAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, err := uploadOptions(c)
		if err != nil {
			_ = c.Error(err)
			return
		}
		fh, ok := formImage(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := svc.AnalyzeUpload(ctx, fh, opts)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func nsfwCheck(svc service.ImageAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageURL, ok := bindImageURL(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := svc.CheckURL(ctx, imageURL)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func nsfwCheckUpload(svc service.ImageAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, ok := formImage(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := svc.CheckUpload(ctx, fh)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func imagesHealth(svc service.ImageAnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Status())
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": config.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func bindImageURL(c *gin.Context) (string, bool) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		if err != nil && isBodyTooLarge(err) {
			_ = c.Error(apperrors.NewTooLargeError("request body too large", err))
			return "", false
		}
		_ = c.Error(apperrors.NewValidationError(missingURLMessage, nil))
		return "", false
	}
	return req.ImageURL, true
}

func formImage(c *gin.Context) (*multipart.FileHeader, bool) {
	fh, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			_ = c.Error(apperrors.NewTooLargeError("request body too large", err))
		} else {
			_ = c.Error(apperrors.NewValidationError("No image file provided", err))
		}
		return nil, false
	}
	return fh, true
}

// uploadOptions reads the optional mode query parameter and the per-analysis
// boolean flags, which override the mode.
func uploadOptions(c *gin.Context) (analyzer.Options, error) {
	s, err := strategy.Lookup(c.Query("mode"))
	if err != nil {
		return analyzer.Options{}, apperrors.NewValidationError(err.Error(), nil)
	}
	opts := s.Options()

	flags := []struct {
		name string
		dst  *bool
	}{
		{"quality", &opts.AnalyzeQuality},
		{"crops", &opts.SuggestCrops},
		{"nsfw", &opts.DetectInappropriate},
	}
	for _, f := range flags {
		raw, ok := c.GetQuery(f.name)
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return analyzer.Options{}, apperrors.NewValidationError("invalid boolean for "+f.name, err)
		}
		*f.dst = v
	}
	return opts, nil
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(service.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	log := logger.ForComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"request_id":  c.GetString("request_id"),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Request completed")
		} else {
			entry.Info("Request completed")
		}
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			_ = c.Error(apperrors.NewTooLargeError("request body too large", nil))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage renders err for the response body. AppError messages are
// shown with the first cause appended.
func clientMessage(err error) string {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return "Internal server error: " + err.Error()
	}
	if appErr.Cause == nil {
		return appErr.Message
	}
	var inner *apperrors.AppError
	if errors.As(appErr.Cause, &inner) {
		return appErr.Message + ": " + inner.Message
	}
	return appErr.Message + ": " + appErr.Cause.Error()
}

func respondError(c *gin.Context, code int, err error) {
	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
		"request_id":  c.GetString("request_id"),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request failed")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Success:   false,
		Error:     clientMessage(err),
		RequestID: c.GetString("request_id"),
	})
}
