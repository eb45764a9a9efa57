package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/checkup-extractor/internal/batch"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

// Loader resolves a document reference to bytes.
type Loader interface {
	Load(ctx context.Context, ref string) (document.Document, error)
}

// Pager renders a document as one image per page.
type Pager interface {
	Pages(ctx context.Context, doc document.Document) ([]document.Image, error)
}

// Request selects the document and the providers for one parse.
type Request struct {
	// Ref is a path, http(s) URL or s3:// URI. Ignored when Document is set.
	Ref      string
	Document *document.Document

	VisionProvider string
	VisionModel    string
	VisionAPIKey   string

	ParserProvider string
	ParserModel    string
	ParserAPIKey   string

	// OCRProvider defaults to ParserProvider.
	OCRProvider string
}

// Source describes where the document came from, for logs and storage.
func (r Request) Source() string {
	if r.Document != nil {
		return r.Document.Name
	}
	return r.Ref
}

// Output is the parse result. The slices hold one element per document.
type Output struct {
	Data       []checkup.Record  `json:"data"`
	Pages      []checkup.PageMap `json:"pages"`
	OCRResults []ocr.Result      `json:"ocrResults"`
}

// ParserConfig tunes a Parser.
type ParserConfig struct {
	ParseConcurrency int
	Executor         ExecutorConfig
}

// Parser runs the whole extraction for one document.
type Parser struct {
	registry *provider.Registry
	loader   Loader
	pager    Pager
	executor *Executor
	cfg      ParserConfig
	log      *slog.Logger
}

func NewParser(registry *provider.Registry, loader Loader, pager Pager, cfg ParserConfig, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ParseConcurrency < 1 {
		cfg.ParseConcurrency = 3
	}
	return &Parser{
		registry: registry,
		loader:   loader,
		pager:    pager,
		executor: NewExecutor(cfg.Executor, logger),
		cfg:      cfg,
		log:      logger,
	}
}

type selection struct {
	vision provider.VisionProvider
	ocr    provider.OCRProvider
	doc    provider.DocumentProvider
}

func resolve(reg *provider.Registry, req Request) (selection, error) {
	var sel selection
	var err error
	if sel.vision, err = reg.Vision(req.VisionProvider); err != nil {
		return sel, fmt.Errorf("vision provider: %w", err)
	}
	if sel.doc, err = reg.Document(req.ParserProvider); err != nil {
		return sel, fmt.Errorf("document provider: %w", err)
	}
	ocrName := req.OCRProvider
	if ocrName == "" {
		ocrName = req.ParserProvider
	}
	if sel.ocr, err = reg.OCR(ocrName); err != nil {
		return sel, fmt.Errorf("ocr provider: %w", err)
	}
	return sel, nil
}

// CheckProviders reports whether req names enabled providers that have the
// capabilities a parse needs.
func CheckProviders(reg *provider.Registry, req Request) error {
	_, err := resolve(reg, req)
	return err
}

// Parse loads, rasterizes, OCRs and parses the document, runs the three
// strategies and reconciles them.
func (p *Parser) Parse(ctx context.Context, req Request) (Output, error) {
	start := time.Now()
	log := common.Logger(ctx, p.log)
	sel, err := resolve(p.registry, req)
	if err != nil {
		return Output{}, err
	}

	var doc document.Document
	if req.Document != nil {
		doc = *req.Document
	} else {
		if req.Ref == "" {
			return Output{}, errors.New("document reference is required")
		}
		if doc, err = p.loader.Load(ctx, req.Ref); err != nil {
			return Output{}, fmt.Errorf("load document: %w", err)
		}
	}

	images, err := p.pager.Pages(ctx, doc)
	if err != nil {
		return Output{}, fmt.Errorf("rasterize: %w", err)
	}
	log.Info("parser.rasterize.ok", "source", req.Source(), "pages", len(images))

	ocrRes, markdown, err := p.extract(ctx, sel, req, doc, images)
	if err != nil {
		return Output{}, err
	}

	cands, err := p.executor.Run(ctx, Inputs{
		Vision:   sel.vision,
		Model:    req.VisionModel,
		APIKey:   req.VisionAPIKey,
		Images:   images,
		Markdown: markdown,
		OCR:      ocrRes,
	})
	if err != nil {
		return Output{}, err
	}

	merged, err := Reconcile(cands)
	if err != nil {
		return Output{}, err
	}

	log.Info("parser.ok",
		"source", req.Source(),
		"vision", sel.vision.Name(),
		"parser", sel.doc.Name(),
		"fields", len(merged.Record.NonNullKeys()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Output{
		Data:       []checkup.Record{merged.Record},
		Pages:      []checkup.PageMap{merged.Pages},
		OCRResults: []ocr.Result{ocrRes},
	}, nil
}

// extract OCRs the whole document while the page images are parsed to
// markdown with bounded concurrency. Any page failing fails the parse.
func (p *Parser) extract(ctx context.Context, sel selection, req Request, doc document.Document, images []document.Image) (ocr.Result, string, error) {
	log := common.Logger(ctx, p.log)
	var (
		ocrRes ocr.Result
		pages  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := sel.ocr.OCR(gctx, doc, provider.Options{Model: req.ParserModel, APIKey: req.ParserAPIKey})
		if err != nil {
			log.Error("parser.ocr.failed", "provider", sel.ocr.Name(), "err", err)
			return fmt.Errorf("ocr: %w", err)
		}
		log.Info("parser.ocr.ok", "provider", sel.ocr.Name(), "pages", len(res.Pages), "words", res.WordCount())
		ocrRes = res
		return nil
	})
	g.Go(func() error {
		tasks := make([]batch.Task[string], len(images))
		for i, img := range images {
			img := img
			tasks[i] = func(ctx context.Context) (string, error) {
				return sel.doc.Parse(ctx, img.AsDocument(), provider.Options{Model: req.ParserModel, APIKey: req.ParserAPIKey})
			}
		}
		out, err := batch.Run(gctx, p.cfg.ParseConcurrency, tasks)
		if err != nil {
			log.Error("parser.pages.failed", "provider", sel.doc.Name(), "err", err)
			return fmt.Errorf("parse pages: %w", err)
		}
		pages = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return ocr.Result{}, "", err
	}
	return ocrRes, joinPages(pages), nil
}

func joinPages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for _, md := range pages {
		if md = strings.TrimSpace(md); md != "" {
			parts = append(parts, md)
		}
	}
	return strings.Join(parts, "\n\n")
}
