//go:build !ocr

package tesseract

import (
	"log/slog"

	"github.com/joseph-ayodele/checkup-extractor/internal/document"
)

func defaultEngine(cfg Config, logger *slog.Logger) engine {
	return &cliEngine{cfg: cfg, runner: document.ExecRunner{}, log: logger}
}
