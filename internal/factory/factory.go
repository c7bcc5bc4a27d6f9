package factory

import (
	"fmt"

	"github.com/anime-shed/live-text-go/internal/capture"
	"github.com/anime-shed/live-text-go/internal/capture/webcam"
	"github.com/anime-shed/live-text-go/internal/config"
	"github.com/anime-shed/live-text-go/internal/recognizer"
	"github.com/anime-shed/live-text-go/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// HTTPStorage for HTTP-based image fetching
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
)

// RecognizerFactory creates text recognizers
type RecognizerFactory interface {
	CreateRecognizer(opts recognizer.Options) (recognizer.Recognizer, error)
}

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
}

// SourceFactory creates frame sources
type SourceFactory interface {
	// CreateSource returns nil, nil when live scanning is disabled
	CreateSource() (capture.Source, error)
}

// RecognizerOptions derives recognizer options from configuration
func RecognizerOptions(cfg *config.Config) recognizer.Options {
	return recognizer.DefaultOptions().
		WithLanguages(cfg.RecognitionLanguages...).
		WithMode(cfg.RecognitionMode).
		WithLanguageCorrection(cfg.LanguageCorrection).
		WithMaxWidth(cfg.MaxFrameWidth)
}

// recognizerFactory implements RecognizerFactory
type recognizerFactory struct{}

// NewRecognizerFactory creates a new recognizer factory
func NewRecognizerFactory() RecognizerFactory {
	return &recognizerFactory{}
}

// CreateRecognizer creates a tesseract backed recognizer
func (f *recognizerFactory) CreateRecognizer(opts recognizer.Options) (recognizer.Recognizer, error) {
	return recognizer.NewTesseractRecognizer(opts)
}

// storageFactory implements StorageFactory
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
		return storage.NewHTTPImageFetcherWithOptions(opts), nil
	case AzureStorage:
		if !f.cfg.AzureEnabled() {
			return nil, fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
		fetcher, err := storage.NewAzureImageFetcher(f.cfg.AzureAccountName, f.cfg.AzureAccountKey)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// sourceFactory implements SourceFactory
type sourceFactory struct {
	cfg     *config.Config
	fetcher storage.ImageFetcher
}

// NewSourceFactory creates a frame source factory. fetcher serves snapshot
// polling.
func NewSourceFactory(cfg *config.Config, fetcher storage.ImageFetcher) SourceFactory {
	return &sourceFactory{cfg: cfg, fetcher: fetcher}
}

// CreateSource creates the frame source named by FRAME_SOURCE
func (f *sourceFactory) CreateSource() (capture.Source, error) {
	switch f.cfg.FrameSource {
	case config.SourceCamera:
		src, err := webcam.Open(f.cfg.CameraDevice, f.cfg.FrameInterval)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceSnapshot:
		fetcher := f.fetcher
		if fetcher == nil {
			fetcher = storage.NewHTTPImageFetcherWithOptions(snapshotFetcherOptions(f.cfg))
		}
		return capture.NewSnapshotSource(fetcher, f.cfg.SnapshotURL, f.cfg.FrameInterval, f.cfg.ImageFetchTimeout), nil
	case config.SourceNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported frame source: %s", f.cfg.FrameSource)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	RecognizerFactory RecognizerFactory
	StorageFactory    StorageFactory
	SourceFactory     SourceFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		RecognizerFactory: NewRecognizerFactory(),
		StorageFactory:    NewStorageFactory(cfg),
		SourceFactory:     NewSourceFactory(cfg, nil),
	}
}

// snapshotFetcherOptions configures the fetcher used to poll a snapshot URL.
// A failed snapshot is replaced by the next tick, so there are no retries.
func snapshotFetcherOptions(cfg *config.Config) storage.HTTPOptions {
	opts := storage.DefaultHTTPOptions()
	opts.Attempts = 1
	opts.Timeout = cfg.ImageFetchTimeout
	opts.InsecureTLS = cfg.SnapshotInsecureTLS
	return opts
}
