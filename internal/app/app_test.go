package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("app.test", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json logger wrote %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "warn", "text").Info("app.hidden")
	if buf.Len() != 0 {
		t.Errorf("warn logger wrote info line %q", buf.String())
	}
}

func TestNewWithStoreWiresRegistry(t *testing.T) {
	cfg := &common.Config{
		Deployment: constants.DeploymentLocal,
		Pipeline:   common.PipelineConfig{ParseConcurrency: 2, MaxAttempts: 3},
	}
	a, err := NewWithStore(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewWithStore() error = %v", err)
	}
	defer a.Close()

	for _, name := range []string{"upstage", "docling", "tesseract"} {
		if _, err := a.Registry.OCR(name); err != nil {
			t.Errorf("Registry.OCR(%q) error = %v", name, err)
		}
	}
	if _, err := a.Registry.Vision("openai"); err != nil {
		t.Errorf("Registry.Vision(openai) error = %v", err)
	}
	if a.Parser == nil || a.Processor == nil || a.Exporter == nil || a.Loader == nil {
		t.Errorf("App = %+v, want every component set", a)
	}
}

func TestRemoteRefsOnly(t *testing.T) {
	cfg := &common.Config{
		Deployment: constants.DeploymentLocal,
		Pipeline:   common.PipelineConfig{ParseConcurrency: 1, MaxAttempts: 1},
	}
	local := filepath.Join(t.TempDir(), "checkup.pdf")

	cli, err := NewWithStore(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewWithStore() error = %v", err)
	}
	if err := cli.Loader.CheckRef(local); err != nil {
		t.Errorf("CLI CheckRef(%q) = %v, want nil", local, err)
	}

	daemon, err := NewWithStore(context.Background(), cfg, nil, nil, WithRemoteRefsOnly())
	if err != nil {
		t.Fatalf("NewWithStore() error = %v", err)
	}
	if err := daemon.Loader.CheckRef(local); !errors.Is(err, document.ErrLocalRef) {
		t.Errorf("daemon CheckRef(%q) = %v, want ErrLocalRef", local, err)
	}
	if _, err := daemon.Loader.Load(context.Background(), local); !errors.Is(err, document.ErrLocalRef) {
		t.Errorf("daemon Load(%q) error = %v, want ErrLocalRef", local, err)
	}
}
