package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/constants"
)

// RasterConfig controls page rendering.
type RasterConfig struct {
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	HeicConverter string // "magick" | "heif-convert" | "sips"; if empty -> "magick"
	DPI           int    // default 200
	MaxPages      int    // 0 = no limit
	MaxImageDim   int    // 0 = keep original size
}

// Rasterizer turns a document into one image per page.
type Rasterizer struct {
	cfg    RasterConfig
	runner Runner
	logger *slog.Logger
}

// RasterOption customizes a Rasterizer.
type RasterOption func(*Rasterizer)

// WithRunner swaps the command runner (tests).
func WithRunner(r Runner) RasterOption {
	return func(rz *Rasterizer) {
		if r != nil {
			rz.runner = r
		}
	}
}

func NewRasterizer(cfg RasterConfig, logger *slog.Logger, opts ...RasterOption) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.HeicConverter == "" {
		cfg.HeicConverter = "magick"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	rz := &Rasterizer{cfg: cfg, runner: ExecRunner{}, logger: logger}
	for _, o := range opts {
		o(rz)
	}
	return rz
}

// Pages renders doc to page images in page order.
func (r *Rasterizer) Pages(ctx context.Context, doc Document) ([]Image, error) {
	start := time.Now()
	var (
		pages []Image
		err   error
	)
	switch doc.ContentType {
	case constants.ContentTypePDF:
		pages, err = r.pdfPages(ctx, doc)
	case constants.ContentTypeImage:
		var img Image
		img, err = r.imagePage(ctx, doc)
		pages = []Image{img}
	default:
		err = fmt.Errorf("unsupported content type %q", doc.ContentType)
	}
	if err != nil {
		r.logger.Error("rasterize.failed", "name", doc.Name, "content_type", doc.ContentType, "error", err)
		return nil, fmt.Errorf("rasterize %s: %w", doc.Name, err)
	}
	r.logger.Info("rasterize.ok",
		"name", doc.Name,
		"content_type", doc.ContentType,
		"pages", len(pages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

func (r *Rasterizer) pdfPages(ctx context.Context, doc Document) ([]Image, error) {
	tmpDir, err := os.MkdirTemp("", "ce-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, doc.Data, 0o600); err != nil {
		return nil, err
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 200 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png"}
	if r.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(r.cfg.MaxPages))
	}
	args = append(args, in, prefix)
	if _, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, r.logger, args...); err != nil {
		return nil, fmt.Errorf("rasterize pdf: %w: %s", err, tail(errb, 512))
	}

	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if r.cfg.MaxPages > 0 && len(matches) > r.cfg.MaxPages {
		matches = matches[:r.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	out := make([]Image, 0, len(matches))
	for i, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		img, err := Prepare(i+1, data, r.cfg.MaxImageDim)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func (r *Rasterizer) imagePage(ctx context.Context, doc Document) (Image, error) {
	data := doc.Data
	if constants.IsHEICExt(doc.Ext()) {
		converted, err := r.convertHEIC(ctx, doc)
		if err != nil {
			return Image{}, err
		}
		data = converted
	}
	return Prepare(1, data, r.cfg.MaxImageDim)
}

// convertHEIC converts a HEIC/HEIF image to PNG using the configured converter.
func (r *Rasterizer) convertHEIC(ctx context.Context, doc Document) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "ce-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in."+doc.Ext())
	out := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, doc.Data, 0o600); err != nil {
		return nil, err
	}

	var args []string
	switch r.cfg.HeicConverter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return nil, fmt.Errorf("HEIC not supported: converter must be one of heif-convert | magick | sips")
	}
	if _, errb, err := r.runner.Run(ctx, r.cfg.HeicConverter, r.logger, args...); err != nil {
		return nil, fmt.Errorf("convert heic: %w: %s", err, tail(errb, 512))
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	return b, nil
}
