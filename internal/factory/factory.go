package factory

import (
	"fmt"

	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
	"github.com/anime-shed/profile-image-analyzer/internal/classifier"
	"github.com/anime-shed/profile-image-analyzer/internal/config"
	"github.com/anime-shed/profile-image-analyzer/internal/repository"
	"github.com/anime-shed/profile-image-analyzer/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// HTTPStorage for HTTP-based image fetching
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
	// DataURLStorage for inline base64 data URLs
	DataURLStorage StorageType = "data"
)

// Schemes lists the reference schemes served by each storage type.
var Schemes = map[StorageType][]string{
	HTTPStorage:    {"http", "https"},
	AzureStorage:   {"azblob"},
	DataURLStorage: {"data"},
}

// AnalyzerFactory creates image analyzers
type AnalyzerFactory interface {
	CreateAnalyzer(opts ...analyzer.Option) *analyzer.Analyzer
}

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
	// Available lists the storage types the configuration can build.
	Available() []StorageType
	// CreateRepository registers every available storage under its schemes.
	CreateRepository() (*repository.RoutingImageRepository, error)
}

type analyzerFactory struct {
	cfg  *config.Config
	load classifier.Loader
}

// NewAnalyzerFactory creates a new analyzer factory. A nil loader selects the
// ONNX classifier described by cfg.
func NewAnalyzerFactory(cfg *config.Config, load classifier.Loader) AnalyzerFactory {
	if load == nil {
		load = classifier.NewONNXLoader(classifier.ONNXOptions{
			ModelPath:         cfg.NSFWModelPath,
			SharedLibraryPath: cfg.ONNXLibraryPath,
			NumThreads:        cfg.ONNXThreads,
		})
	}
	return &analyzerFactory{cfg: cfg, load: load}
}

// CreateAnalyzer attempts the classifier load once and returns the analyzer
func (f *analyzerFactory) CreateAnalyzer(opts ...analyzer.Option) *analyzer.Analyzer {
	return analyzer.NewFromLoader(analyzer.Config{
		NSFWThreshold: f.cfg.NSFWThreshold,
		LoadModel:     f.cfg.NSFWLoadModel,
	}, f.load, opts...)
}

type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	switch storageType {
	case HTTPStorage:
		opts := storage.DefaultHTTPOptions()
		opts.Timeout = f.cfg.ImageFetchTimeout
		opts.MaxBytes = f.cfg.MaxImageBytes
		return storage.NewHTTPImageFetcher(opts), nil
	case AzureStorage:
		if !f.cfg.AzureEnabled() {
			return nil, fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
		return storage.NewAzureBlobFetcher(f.cfg.AzureAccountName, f.cfg.AzureAccountKey, f.cfg.MaxImageBytes)
	case DataURLStorage:
		return storage.DataURLFetcher{MaxBytes: f.cfg.MaxImageBytes}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

func (f *storageFactory) Available() []StorageType {
	out := []StorageType{HTTPStorage, DataURLStorage}
	if f.cfg.AzureEnabled() {
		out = append(out, AzureStorage)
	}
	return out
}

func (f *storageFactory) CreateRepository() (*repository.RoutingImageRepository, error) {
	repo := repository.NewRoutingImageRepository().AllowHosts(f.cfg.AllowedImageHosts...)
	for _, st := range f.Available() {
		fetcher, err := f.CreateStorage(st)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s storage: %w", st, err)
		}
		repo.Register(fetcher, Schemes[st]...)
	}
	return repo, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	AnalyzerFactory AnalyzerFactory
	StorageFactory  StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config, load classifier.Loader) *ComponentFactory {
	return &ComponentFactory{
		AnalyzerFactory: NewAnalyzerFactory(cfg, load),
		StorageFactory:  NewStorageFactory(cfg),
	}
}
