// Package tesseract runs Tesseract locally. Builds with the "ocr" tag link
// libtesseract through gosseract; other builds shell out to the tesseract
// binary in TSV mode.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const Name = "tesseract"

type Config struct {
	Binary      string // CLI engine only; default "tesseract"
	Lang        string // e.g. "eng+kor"
	TessdataDir string
	PSM         int
	Timeout     time.Duration
}

// Pager renders documents to page images.
type Pager interface {
	Pages(ctx context.Context, doc document.Document) ([]document.Image, error)
}

// word is one recognized token with a top-left pixel box.
type word struct {
	Text       string
	Confidence float64 // 0..1
	Box        image.Rectangle
}

// pageResult is what an engine returns for one image.
type pageResult struct {
	Words []word
	Text  string
}

type engine interface {
	recognize(ctx context.Context, img document.Image) (pageResult, error)
}

type Client struct {
	provider.Base
	cfg    Config
	pager  Pager
	engine engine
	log    *slog.Logger
}

type Option func(*Client)

// WithRunner forces the CLI engine with the given command runner.
func WithRunner(r document.Runner) Option {
	return func(c *Client) { c.engine = &cliEngine{cfg: c.cfg, runner: r, log: c.log} }
}

func New(cfg Config, pager Pager, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	c := &Client{
		Base:  provider.NewBase(Name, "Tesseract", false, true, provider.Model{ID: "tesseract", Name: "Tesseract " + cfg.Lang}),
		cfg:   cfg,
		pager: pager,
		log:   logger,
	}
	c.engine = defaultEngine(cfg, logger)
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) recognizeAll(ctx context.Context, op string, doc document.Document) ([]document.Image, []pageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	imgs, err := c.pager.Pages(ctx, doc)
	if err != nil {
		return nil, nil, provider.NewError(Name, op, provider.ErrBadResponse, err)
	}
	out := make([]pageResult, len(imgs))
	for i, img := range imgs {
		r, err := c.engine.recognize(ctx, img)
		if err != nil {
			return nil, nil, provider.Classify(Name, op, fmt.Errorf("page %d: %w", img.Page, err))
		}
		out[i] = r
	}
	return imgs, out, nil
}

// OCR recognizes every page. Tesseract boxes are top-left already.
func (c *Client) OCR(ctx context.Context, doc document.Document, _ provider.Options) (ocr.Result, error) {
	start := time.Now()
	imgs, results, err := c.recognizeAll(ctx, "ocr", doc)
	if err != nil {
		return ocr.Result{}, err
	}
	pages := make([]*ocr.Page, len(imgs))
	for i, img := range imgs {
		p := ocr.NewPage(img.Page-1, float64(img.Width), float64(img.Height))
		p.Text = results[i].Text
		for _, w := range results[i].Words {
			box := ocr.BoundingBox{L: float64(w.Box.Min.X), T: float64(w.Box.Min.Y), R: float64(w.Box.Max.X), B: float64(w.Box.Max.Y)}
			p.AddWord(w.Text, w.Confidence, box, ocr.OriginTopLeft)
		}
		pages[i] = p
	}
	res := ocr.Build(Name, pages)
	c.log.Info("tesseract.ocr.ok",
		"name", doc.Name,
		"pages", len(res.Pages),
		"words", res.WordCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Parse returns the recognized plain text, pages separated by a blank line.
func (c *Client) Parse(ctx context.Context, doc document.Document, _ provider.Options) (string, error) {
	_, results, err := c.recognizeAll(ctx, "parse", doc)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

var (
	_ provider.OCRProvider      = (*Client)(nil)
	_ provider.DocumentProvider = (*Client)(nil)
)
