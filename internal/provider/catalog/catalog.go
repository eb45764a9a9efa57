// Package catalog wires every provider adapter into a registry from config.
package catalog

import (
	"log/slog"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/docconv"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/docling"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/gemini"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/ollama"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/openai"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/tesseract"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider/upstage"
)

// New builds the registry. pager renders pages for the local OCR engine.
func New(cfg *common.Config, pager tesseract.Pager, logger *slog.Logger) *provider.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	p := cfg.Providers
	return provider.NewRegistry(
		upstage.New(upstage.Config{
			BaseURL:    p.UpstageBaseURL,
			EnvAPIKey:  p.UpstageAPIKey,
			Deployment: cfg.Deployment,
			Timeout:    p.Timeout,
		}, logger),
		docling.New(docling.Config{
			URL:        p.DoclingURL,
			Deployment: cfg.Deployment,
			Timeout:    p.Timeout,
		}, logger),
		tesseract.New(tesseract.Config{
			Lang:        p.TesseractLang,
			TessdataDir: p.TessdataDir,
			Timeout:     p.Timeout,
		}, pager, logger),
		docconv.New(p.Timeout, logger),
		openai.New(openai.Config{
			EnvAPIKey:  p.OpenAIAPIKey,
			BaseURL:    p.OpenAIBaseURL,
			Deployment: cfg.Deployment,
			Timeout:    p.VisionTimeout,
		}, logger),
		gemini.New(gemini.Config{
			EnvAPIKey:  p.GeminiAPIKey,
			Deployment: cfg.Deployment,
			Timeout:    p.VisionTimeout,
		}, logger),
		ollama.New(ollama.Config{
			URL:        p.OllamaURL,
			Deployment: cfg.Deployment,
			Timeout:    p.VisionTimeout,
		}, logger),
	)
}
