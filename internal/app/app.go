// Package app wires configuration into the record store, the provider
// registry and the extraction pipeline. Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/export"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/catalog"
	"github.com/joseph-ayodele/checkup-extractor/internal/repository"
)

// App holds the long-lived components.
type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	Registry  *provider.Registry
	Loader    *document.Loader
	Records   repository.HealthRecordRepository
	Parser    *pipeline.Parser
	Processor *pipeline.Processor
	Exporter  *export.Service

	closeStore func()
}

type options struct {
	remoteOnly bool
}

// Option tunes how the App is built.
type Option func(*options)

// WithRemoteRefsOnly limits document references to http(s) and s3://. Network
// servers use it so clients cannot point the loader at files on the host.
func WithRemoteRefsOnly() Option {
	return func(o *options) { o.remoteOnly = true }
}

// New opens the store and builds the pipeline.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	records, closeStore, err := repository.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a, err := NewWithStore(ctx, cfg, records, logger, opts...)
	if err != nil {
		closeStore()
		return nil, err
	}
	a.closeStore = closeStore
	return a, nil
}

// NewWithStore builds the pipeline around an already opened store.
func NewWithStore(ctx context.Context, cfg *common.Config, records repository.HealthRecordRepository, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	rasterizer := document.NewRasterizer(document.RasterConfig{
		Pdftoppm:    cfg.Raster.Pdftoppm,
		DPI:         cfg.Raster.DPI,
		MaxPages:    cfg.Raster.MaxPages,
		MaxImageDim: cfg.Raster.MaxImageDim,
	}, logger)

	loaderOpts := []document.LoaderOption{document.WithLocalFiles(!o.remoteOnly)}
	if cfg.AWS.Region != "" {
		fetcher, err := document.NewS3Fetcher(ctx, document.S3Config{
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 fetcher: %w", err)
		}
		loaderOpts = append(loaderOpts, document.WithObjectFetcher(fetcher))
	}
	loader := document.NewLoader(logger, loaderOpts...)

	registry := catalog.New(cfg, rasterizer, logger)
	parser := pipeline.NewParser(registry, loader, rasterizer, pipeline.ParserConfig{
		ParseConcurrency: cfg.Pipeline.ParseConcurrency,
		Executor: pipeline.ExecutorConfig{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			Backoff:     cfg.Pipeline.RetryBackoff,
			Lenient:     cfg.Pipeline.Lenient,
		},
	}, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Loader:    loader,
		Records:   records,
		Parser:    parser,
		Processor: pipeline.NewProcessor(logger, parser, records),
		Exporter:  export.NewService(records, logger),
	}, nil
}

// Close releases the store.
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}

// NewLogger builds the process logger. format is "json" or "text".
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
