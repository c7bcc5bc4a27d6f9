package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/anime-shed/live-text-go/internal/capture"
	"github.com/anime-shed/live-text-go/internal/config"
	"github.com/anime-shed/live-text-go/internal/display"
	"github.com/anime-shed/live-text-go/internal/factory"
	"github.com/anime-shed/live-text-go/internal/hub"
	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/internal/observer"
	"github.com/anime-shed/live-text-go/internal/pipeline"
	"github.com/anime-shed/live-text-go/internal/recognizer"
	"github.com/anime-shed/live-text-go/internal/repository"
	"github.com/anime-shed/live-text-go/internal/selection"
	"github.com/anime-shed/live-text-go/internal/service"
	"github.com/anime-shed/live-text-go/internal/storage"
	"github.com/anime-shed/live-text-go/internal/transport"
	"github.com/anime-shed/live-text-go/pkg/models"
	"github.com/anime-shed/live-text-go/pkg/validation"
)

// Option overrides a component the container would otherwise build
type Option func(*Container)

// WithRecognizer uses rec instead of a tesseract recognizer
func WithRecognizer(rec recognizer.Recognizer) Option {
	return func(c *Container) { c.recognizer = rec }
}

// WithSource uses src instead of the configured frame source
func WithSource(src capture.Source) Option {
	return func(c *Container) {
		c.source = src
		c.sourceSet = true
	}
}

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	recognizer  recognizer.Recognizer
	source      capture.Source
	sourceSet   bool
	repository  repository.ImageRepository
	service     service.RecognitionService
	publisher   *observer.EventPublisher
	metrics     *observer.MetricsObserver
	hub         *hub.Hub
	display     *display.Display
	pool        *pipeline.WorkerPool
	scanner     *pipeline.Scanner
	handler     http.Handler

	wg      sync.WaitGroup
	scanErr chan error
}

// NewContainer creates a new dependency injection container. A camera that
// cannot be opened is returned as a configuration error wrapping
// capture.ErrNoCamera.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	c := &Container{config: cfg, scanErr: make(chan error, 1)}
	for _, opt := range opts {
		opt(c)
	}

	components := factory.NewComponentFactory(cfg)

	httpFetcher, err := components.StorageFactory.CreateStorage(factory.HTTPStorage)
	if err != nil {
		return nil, fmt.Errorf("failed to create http storage: %w", err)
	}
	var blobFetcher storage.ImageFetcher
	if cfg.AzureEnabled() {
		if blobFetcher, err = components.StorageFactory.CreateStorage(factory.AzureStorage); err != nil {
			return nil, fmt.Errorf("failed to create azure storage: %w", err)
		}
	}
	c.repository = repository.NewImageRepository(httpFetcher, blobFetcher, validation.NewURLValidator())

	if c.recognizer == nil {
		rec, err := components.RecognizerFactory.CreateRecognizer(factory.RecognizerOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create recognizer: %w", err)
		}
		c.recognizer = rec
	}

	policy := selection.DefaultPolicy().WithThreshold(cfg.ConfidenceThreshold)
	c.service = service.NewRecognitionService(c.repository, c.recognizer, policy, cfg.RecognitionTimeout)

	if !c.sourceSet {
		src, err := components.SourceFactory.CreateSource()
		if err != nil {
			c.recognizer.Close()
			return nil, err
		}
		c.source = src
	}

	deps := transport.Dependencies{
		Service: c.service,
		Config:  cfg,
	}

	if c.source != nil {
		c.buildLivePipeline(policy)
		deps.Display = c.display
		deps.Metrics = c.metrics
		deps.Pool = c.scanner
		deps.Hub = c.hub
	}

	c.handler = transport.NewHandler(deps)
	return c, nil
}

func (c *Container) buildLivePipeline(policy selection.Policy) {
	cfg := c.config

	c.publisher = observer.NewEventPublisher()
	c.metrics = observer.NewMetricsObserver()
	c.hub = hub.NewHub()
	c.publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	c.publisher.Subscribe(c.metrics)
	c.publisher.Subscribe(c.hub)

	vp := models.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	c.display = display.New(vp, cfg.InitialText, c.publisher)

	gateOpts := pipeline.DefaultGateOptions()
	gateOpts.SkipSimilar = cfg.SkipSimilarFrames
	gateOpts.BlurThreshold = cfg.BlurThreshold

	c.pool = pipeline.NewWorkerPool(cfg.Workers)
	c.scanner = pipeline.NewScanner(
		c.source,
		c.recognizer,
		policy,
		c.display,
		c.pool,
		pipeline.NewGate(gateOpts),
		c.publisher,
		cfg.RecognitionTimeout,
	)
}

// Start runs the display owner and the scanner until ctx is cancelled. It is
// a no-op when live scanning is disabled.
func (c *Container) Start(ctx context.Context) {
	if c.scanner == nil {
		logger.Info("No frame source configured, live scanning disabled")
		return
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.display.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		if err := c.scanner.Run(ctx); err != nil {
			logger.WithError(err).Error("Scanner stopped with error")
			c.scanErr <- err
		}
	}()
}

// ScanErrors reports a scanner that stopped with an error
func (c *Container) ScanErrors() <-chan error {
	return c.scanErr
}

// Close waits for the live pipeline to stop and releases every resource.
// The context passed to Start must be cancelled first.
func (c *Container) Close() error {
	c.wg.Wait()

	var errs []error
	if c.hub != nil {
		c.hub.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
	}
	if c.recognizer != nil {
		if err := c.recognizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recognizer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}
