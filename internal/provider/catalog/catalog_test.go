package catalog

import (
	"testing"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

func TestNewCapabilities(t *testing.T) {
	cfg := &common.Config{Deployment: constants.DeploymentLocal}
	reg := New(cfg, document.NewRasterizer(document.RasterConfig{}, nil), nil)

	want := map[string][]string{
		"upstage":   {provider.CapOCR, provider.CapDocument},
		"docling":   {provider.CapOCR, provider.CapDocument},
		"tesseract": {provider.CapOCR, provider.CapDocument},
		"docconv":   {provider.CapDocument},
		"openai":    {provider.CapVision},
		"gemini":    {provider.CapVision},
		"ollama":    {provider.CapVision},
	}
	for name, caps := range want {
		p, ok := reg.Get(name)
		if !ok {
			t.Errorf("Get(%q) missing", name)
			continue
		}
		got := provider.Capabilities(p)
		if len(got) != len(caps) {
			t.Errorf("Capabilities(%s) = %v, want %v", name, got, caps)
			continue
		}
		for i := range caps {
			if got[i] != caps[i] {
				t.Errorf("Capabilities(%s) = %v, want %v", name, got, caps)
			}
		}
	}
}

func TestCloudDisablesLocalSidecars(t *testing.T) {
	cfg := &common.Config{Deployment: constants.DeploymentCloud}
	cfg.Providers.OpenAIAPIKey = "sk-env"
	reg := New(cfg, nil, nil)

	if _, err := reg.OCR("docling"); err == nil {
		t.Error("docling should be disabled in cloud")
	}
	if _, err := reg.Vision("ollama"); err == nil {
		t.Error("ollama should be disabled in cloud")
	}
	p, _ := reg.Get("openai")
	if p.APIKeyRequired() {
		t.Error("openai with env key should not require a user key")
	}
}
