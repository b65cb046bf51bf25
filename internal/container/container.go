package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
	"github.com/anime-shed/profile-image-analyzer/internal/classifier"
	"github.com/anime-shed/profile-image-analyzer/internal/config"
	"github.com/anime-shed/profile-image-analyzer/internal/factory"
	"github.com/anime-shed/profile-image-analyzer/internal/logger"
	"github.com/anime-shed/profile-image-analyzer/internal/observer"
	"github.com/anime-shed/profile-image-analyzer/internal/repository"
	"github.com/anime-shed/profile-image-analyzer/internal/service"
	"github.com/anime-shed/profile-image-analyzer/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config               *config.Config
	imageAnalyzer        *analyzer.Analyzer
	imageRepository      repository.ImageRepository
	events               *observer.EventPublisher
	metrics              *observer.MetricsObserver
	imageAnalysisService service.ImageAnalysisService
	handler              http.Handler
}

// NewContainer creates a new dependency injection container. A nil loader
// selects the ONNX classifier described by cfg.
func NewContainer(cfg *config.Config, load classifier.Loader) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger.SetLevel(cfg.LogLevel)

	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.ForComponent("events")))
	events.Subscribe(metrics)

	components := factory.NewComponentFactory(cfg, load)

	// Build dependency graph
	repo, err := components.StorageFactory.CreateRepository()
	if err != nil {
		return nil, err
	}

	imageAnalyzer := components.AnalyzerFactory.CreateAnalyzer(
		analyzer.WithLogger(logger.ForComponent("analyzer")),
		analyzer.WithFaultHook(func(reason string) {
			events.NotifyObservers(context.Background(), observer.AnalysisEvent{
				EventType:    observer.ClassifierFallback,
				ErrorMessage: reason,
			})
		}),
	)

	imageAnalysisService := service.NewImageAnalysisService(repo, imageAnalyzer, events, metrics, service.Config{
		MaxConcurrent:  int64(cfg.MaxConcurrent),
		MaxUploadBytes: cfg.MaxImageBytes,
		MaxPixels:      cfg.MaxImagePixels,
	})
	handler := transport.NewHandler(imageAnalysisService, cfg)

	logger.ForComponent("container").WithField("schemes", repo.Schemes()).
		WithField("allowed_hosts", cfg.AllowedImageHosts).
		WithField("nsfw_model", imageAnalyzer.State().ModelName).
		Info("Container initialized")

	return &Container{
		config:               cfg,
		imageAnalyzer:        imageAnalyzer,
		imageRepository:      repo,
		events:               events,
		metrics:              metrics,
		imageAnalysisService: imageAnalysisService,
		handler:              handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the analysis service
func (c *Container) Service() service.ImageAnalysisService {
	return c.imageAnalysisService
}

// Close drains pending events and releases the classifier.
func (c *Container) Close() error {
	c.events.Wait()
	return c.imageAnalyzer.Close()
}
