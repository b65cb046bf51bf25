package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
	apperrors "github.com/anime-shed/profile-image-analyzer/internal/errors"
	"github.com/anime-shed/profile-image-analyzer/internal/logger"
	"github.com/anime-shed/profile-image-analyzer/internal/observer"
	"github.com/anime-shed/profile-image-analyzer/internal/repository"
	"github.com/anime-shed/profile-image-analyzer/internal/storage"
	"github.com/anime-shed/profile-image-analyzer/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ImageAnalysisService fetches images, runs the analyzer and shapes the
// responses served by the HTTP layer.
type ImageAnalysisService interface {
	AnalyzeURL(ctx context.Context, imageURL string, opts analyzer.Options) (*models.AnalysisResponse, error)
	AnalyzeUpload(ctx context.Context, fh *multipart.FileHeader, opts analyzer.Options) (*models.AnalysisResponse, error)

	CheckURL(ctx context.Context, imageURL string) (*models.NSFWCheckResponse, error)
	CheckUpload(ctx context.Context, fh *multipart.FileHeader) (*models.NSFWCheckResponse, error)

	Status() models.HealthStatus
}

// Config bounds the work a service instance accepts. MaxPixels of zero uses
// analyzer.DefaultMaxPixels.
type Config struct {
	MaxConcurrent  int64
	MaxUploadBytes int64
	MaxPixels      int64
}

// StatsProvider exposes aggregated analysis counters.
type StatsProvider interface {
	Snapshot() observer.Stats
}

type imageAnalysisService struct {
	imageRepo repository.ImageRepository
	analyzer  analyzer.ImageAnalyzer
	events    observer.Subject
	stats     StatsProvider
	sem       *semaphore.Weighted
	maxUpload int64
	maxPixels int64
	log       *logrus.Entry
}

// NewImageAnalysisService creates a new image analysis service. events and
// stats may be nil.
func NewImageAnalysisService(
	imageRepository repository.ImageRepository,
	imageAnalyzer analyzer.ImageAnalyzer,
	events observer.Subject,
	stats StatsProvider,
	cfg Config,
) ImageAnalysisService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &imageAnalysisService{
		imageRepo: imageRepository,
		analyzer:  imageAnalyzer,
		events:    events,
		stats:     stats,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		maxUpload: cfg.MaxUploadBytes,
		maxPixels: cfg.MaxPixels,
		log:       logger.ForComponent("service"),
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID carried by ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func ensureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// AnalyzeURL fetches the image behind imageURL and runs the selected analyses
func (s *imageAnalysisService) AnalyzeURL(ctx context.Context, imageURL string, opts analyzer.Options) (*models.AnalysisResponse, error) {
	ctx, reqID := ensureRequestID(ctx)
	start := time.Now()
	s.publish(ctx, observer.AnalysisEvent{EventType: observer.AnalysisStarted, RequestID: reqID, ImageRef: imageURL})

	data, err := s.fetch(ctx, reqID, imageURL)
	if err != nil {
		s.fail(ctx, reqID, imageURL, start, err)
		return nil, err
	}
	resp, err := s.analyzeBytes(ctx, reqID, data, opts)
	if err != nil {
		s.fail(ctx, reqID, imageURL, start, err)
		return nil, err
	}
	s.complete(ctx, reqID, imageURL, start, resp.Analysis.InappropriateContent)
	return resp, nil
}

// AnalyzeUpload runs the selected analyses on an uploaded file
func (s *imageAnalysisService) AnalyzeUpload(ctx context.Context, fh *multipart.FileHeader, opts analyzer.Options) (*models.AnalysisResponse, error) {
	ctx, reqID := ensureRequestID(ctx)
	start := time.Now()
	ref := uploadRef(fh)
	s.publish(ctx, observer.AnalysisEvent{EventType: observer.AnalysisStarted, RequestID: reqID, ImageRef: ref})

	data, err := s.readUpload(fh)
	if err != nil {
		s.fail(ctx, reqID, ref, start, err)
		return nil, err
	}
	resp, err := s.analyzeBytes(ctx, reqID, data, opts)
	if err != nil {
		s.fail(ctx, reqID, ref, start, err)
		return nil, err
	}
	s.complete(ctx, reqID, ref, start, resp.Analysis.InappropriateContent)
	return resp, nil
}

// CheckURL runs content detection only on the image behind imageURL
func (s *imageAnalysisService) CheckURL(ctx context.Context, imageURL string) (*models.NSFWCheckResponse, error) {
	ctx, reqID := ensureRequestID(ctx)
	start := time.Now()
	s.publish(ctx, observer.AnalysisEvent{EventType: observer.AnalysisStarted, RequestID: reqID, ImageRef: imageURL})

	data, err := s.fetch(ctx, reqID, imageURL)
	if err != nil {
		s.fail(ctx, reqID, imageURL, start, err)
		return nil, err
	}
	resp, err := s.checkBytes(ctx, reqID, data)
	if err != nil {
		s.fail(ctx, reqID, imageURL, start, err)
		return nil, err
	}
	s.complete(ctx, reqID, imageURL, start, &resp.NsfwReport)
	return resp, nil
}

// CheckUpload runs content detection only on an uploaded file
func (s *imageAnalysisService) CheckUpload(ctx context.Context, fh *multipart.FileHeader) (*models.NSFWCheckResponse, error) {
	ctx, reqID := ensureRequestID(ctx)
	start := time.Now()
	ref := uploadRef(fh)
	s.publish(ctx, observer.AnalysisEvent{EventType: observer.AnalysisStarted, RequestID: reqID, ImageRef: ref})

	data, err := s.readUpload(fh)
	if err != nil {
		s.fail(ctx, reqID, ref, start, err)
		return nil, err
	}
	resp, err := s.checkBytes(ctx, reqID, data)
	if err != nil {
		s.fail(ctx, reqID, ref, start, err)
		return nil, err
	}
	s.complete(ctx, reqID, ref, start, &resp.NsfwReport)
	return resp, nil
}

// Status reports the analyzer state and the collected counters
func (s *imageAnalysisService) Status() models.HealthStatus {
	st := s.analyzer.State()
	status := models.HealthStatus{
		Status:             "healthy",
		NSFWModelAvailable: st.ModelAvailable,
		NSFWModelName:      st.ModelName,
		NSFWThreshold:      st.Threshold,
		Message:            "Images API is running",
	}
	if !st.ModelAvailable {
		status.Message = "Images API is running, content detection uses fallback scores"
	}
	if s.stats != nil {
		status.Stats = s.stats.Snapshot()
	}
	return status
}

func (s *imageAnalysisService) fetch(ctx context.Context, reqID, imageURL string) ([]byte, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, apperrors.NewValidationError("Missing 'image_url' in request body", nil)
	}
	if err := s.imageRepo.ValidateImageURL(imageURL); err != nil {
		return nil, apperrors.NewValidationError("invalid image URL", err)
	}

	data, err := s.imageRepo.FetchBytes(ctx, imageURL)
	if err != nil {
		s.publish(ctx, observer.AnalysisEvent{
			EventType:    observer.ImageFetchFailed,
			RequestID:    reqID,
			ImageRef:     imageURL,
			ErrorMessage: err.Error(),
		})
		return nil, mapFetchError(err)
	}

	s.publish(ctx, observer.AnalysisEvent{
		EventType: observer.ImageFetched,
		RequestID: reqID,
		ImageRef:  imageURL,
		Success:   true,
		Metadata:  map[string]interface{}{"bytes": len(data)},
	})
	return data, nil
}

func mapFetchError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return apperrors.NewTooLargeError("image exceeds size limit", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("image fetch timeout", err)
	case errors.Is(err, storage.ErrUnsupportedType):
		return apperrors.NewUnsupportedMediaError("unsupported image type", err)
	case errors.Is(err, storage.ErrBadDataURL),
		errors.Is(err, repository.ErrInvalidImageURL),
		errors.Is(err, repository.ErrUnsupportedScheme):
		return apperrors.NewValidationError("invalid image URL", err)
	default:
		return apperrors.NewNetworkError("Failed to download image", err)
	}
}

func (s *imageAnalysisService) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	data, err := storage.ReadMultipart(fh, s.maxUpload)
	if err == nil {
		return data, nil
	}
	switch {
	case errors.Is(err, storage.ErrNoFile):
		return nil, apperrors.NewValidationError("No image file provided", err)
	case errors.Is(err, storage.ErrUnsupportedType):
		return nil, apperrors.NewUnsupportedMediaError(
			"Unsupported file type. Allowed: "+strings.Join(allowedExtensions(), ", "), err)
	case errors.Is(err, storage.ErrTooLarge):
		return nil, apperrors.NewTooLargeError("image exceeds size limit", err)
	default:
		return nil, apperrors.NewValidationError("failed to read upload", err)
	}
}

func allowedExtensions() []string {
	out := make([]string, 0, len(storage.AllowedExtensions))
	for ext := range storage.AllowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// acquire bounds the number of images decoded and analyzed at once.
func (s *imageAnalysisService) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewTimeoutError("timed out waiting for an analysis slot", err)
		}
		return apperrors.NewBusyError("server busy", err)
	}
	return nil
}

func (s *imageAnalysisService) load(data []byte) (*analyzer.DecodedImage, error) {
	img, err := analyzer.Load(analyzer.BytesSource{Data: data, MaxPixels: s.maxPixels})
	if err != nil {
		return nil, apperrors.NewValidationError("Failed to load image", err)
	}
	return img, nil
}

func (s *imageAnalysisService) analyzeBytes(ctx context.Context, reqID string, data []byte, opts analyzer.Options) (*models.AnalysisResponse, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	img, err := s.load(data)
	if err != nil {
		return nil, err
	}

	result := s.analyzer.AnalyzeDecoded(ctx, img, opts)
	if result.Failed() {
		return nil, apperrors.NewProcessingError(result.Error, nil)
	}

	modelUsed := "none"
	if result.InappropriateContent != nil {
		modelUsed = result.InappropriateContent.ModelUsed
	}
	return &models.AnalysisResponse{
		Success:  true,
		Analysis: result,
		NSFWModelStatus: models.NSFWModelStatus{
			Available: s.analyzer.State().ModelAvailable,
			ModelUsed: modelUsed,
		},
		RequestID: reqID,
	}, nil
}

func (s *imageAnalysisService) checkBytes(ctx context.Context, reqID string, data []byte) (*models.NSFWCheckResponse, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	img, err := s.load(data)
	if err != nil {
		return nil, err
	}

	report := s.analyzer.DetectInappropriateContent(ctx, img)
	threshold := s.analyzer.State().Threshold
	return &models.NSFWCheckResponse{
		Success:        true,
		NsfwReport:     report,
		AboveThreshold: report.NsfwProbability > threshold,
		Threshold:      threshold,
		RequestID:      reqID,
	}, nil
}

func (s *imageAnalysisService) publish(ctx context.Context, event observer.AnalysisEvent) {
	if s.events == nil {
		return
	}
	s.events.NotifyObservers(ctx, event)
}

func (s *imageAnalysisService) fail(ctx context.Context, reqID, ref string, start time.Time, err error) {
	s.log.WithError(err).WithField("request_id", reqID).Debug("Request failed")
	s.publish(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisFailed,
		RequestID:      reqID,
		ImageRef:       ref,
		ProcessingTime: time.Since(start),
		ErrorMessage:   err.Error(),
	})
}

func (s *imageAnalysisService) complete(ctx context.Context, reqID, ref string, start time.Time, report *analyzer.NsfwReport) {
	elapsed := time.Since(start)
	if report != nil {
		s.publish(ctx, observer.AnalysisEvent{
			EventType: observer.ContentChecked,
			RequestID: reqID,
			ImageRef:  ref,
			Success:   true,
			Metadata: map[string]interface{}{
				"model_used":       report.ModelUsed,
				"fallback":         report.IsFallback(),
				"is_inappropriate": report.IsInappropriate,
			},
		})
	}
	s.publish(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisCompleted,
		RequestID:      reqID,
		ImageRef:       ref,
		ProcessingTime: elapsed,
		Success:        true,
	})
}

func uploadRef(fh *multipart.FileHeader) string {
	if fh == nil {
		return "upload"
	}
	return fmt.Sprintf("upload:%s", fh.Filename)
}
