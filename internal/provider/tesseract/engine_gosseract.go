//go:build ocr

package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/checkup-extractor/internal/document"
)

func defaultEngine(cfg Config, logger *slog.Logger) engine {
	return &gosseractEngine{cfg: cfg, log: logger}
}

// gosseractEngine uses libtesseract in-process. gosseract clients are not
// safe for concurrent use, so each call gets its own.
type gosseractEngine struct {
	cfg Config
	log *slog.Logger
}

func (e *gosseractEngine) recognize(ctx context.Context, img document.Image) (pageResult, error) {
	if err := ctx.Err(); err != nil {
		return pageResult{}, err
	}
	client := gosseract.NewClient()
	defer func() {
		if err := client.Close(); err != nil {
			e.log.Warn("tesseract.client_close_error", "error", err)
		}
	}()

	if e.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return pageResult{}, fmt.Errorf("set tessdata: %w", err)
		}
	}
	if err := client.SetLanguage(strings.Split(e.cfg.Lang, "+")...); err != nil {
		return pageResult{}, fmt.Errorf("set language: %w", err)
	}
	if e.cfg.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(e.cfg.PSM)); err != nil {
			return pageResult{}, fmt.Errorf("set psm: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img.Data); err != nil {
		return pageResult{}, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return pageResult{}, fmt.Errorf("ocr text: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return pageResult{}, fmt.Errorf("ocr boxes: %w", err)
	}

	res := pageResult{Text: strings.TrimSpace(text), Words: make([]word, 0, len(boxes))}
	for _, b := range boxes {
		res.Words = append(res.Words, word{Text: b.Word, Confidence: b.Confidence / 100, Box: b.Box})
	}
	return res, nil
}
