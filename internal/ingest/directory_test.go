package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
)

type fakeRunner struct {
	mu    sync.Mutex
	seen  []pipeline.Request
	fails map[string]bool // by base name
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*entity.HealthRecord, pipeline.Output, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	rec := &entity.HealthRecord{ID: uuid.New(), Source: req.Source()}
	if f.fails[filepath.Base(req.Source())] {
		rec.Status = constants.RecordStatusError
		return rec, pipeline.Output{}, errors.New("ocr: provider timeout")
	}
	rec.Status = constants.RecordStatusCompleted
	return rec, pipeline.Output{}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-1.4 first")
	writeFile(t, filepath.Join(root, "b.png"), "\x89PNG\r\n\x1a\nsecond")
	writeFile(t, filepath.Join(root, "z-dup.pdf"), "%PDF-1.4 first")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "%PDF-1.4 hidden")
	writeFile(t, filepath.Join(root, "notes.txt"), "not a checkup")
	writeFile(t, filepath.Join(root, "sub", "c.jpg"), "\xff\xd8\xff third")
	writeFile(t, filepath.Join(root, ".cache", "d.pdf"), "%PDF-1.4 cached")
	return root
}

func TestScan(t *testing.T) {
	root := testTree(t)

	tests := []struct {
		name       string
		skipHidden bool
		want       []string
	}{
		{"skip hidden", true, []string{"a.pdf", "b.png", "sub/c.jpg", "z-dup.pdf"}},
		{"include hidden", false, []string{".cache/d.pdf", ".hidden.pdf", "a.pdf", "b.png", "sub/c.jpg", "z-dup.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, stats, err := Scan(root, tt.skipHidden)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if len(paths) != len(tt.want) {
				t.Fatalf("Scan() = %v, want %v", paths, tt.want)
			}
			for i, p := range paths {
				rel, _ := filepath.Rel(root, p)
				if filepath.ToSlash(rel) != tt.want[i] {
					t.Errorf("Scan()[%d] = %s, want %s", i, rel, tt.want[i])
				}
			}
			if int(stats.Matched) != len(tt.want) || stats.Scanned != stats.Matched+1 {
				t.Errorf("stats = %+v, want %d matched and notes.txt scanned", stats, len(tt.want))
			}
		})
	}

	if _, _, err := Scan("", true); err == nil {
		t.Error("Scan(\"\") succeeded, want error")
	}
}

func TestIngestDirectory(t *testing.T) {
	root := testTree(t)
	runner := &fakeRunner{fails: map[string]bool{"b.png": true}}
	ing := NewDirectoryIngestor(runner, slog.New(slog.NewTextHandler(io.Discard, nil)))

	results, stats, err := ing.IngestDirectory(context.Background(), root, Options{
		SkipHidden:  true,
		Concurrency: 2,
		Template:    pipeline.Request{Ref: "ignored", VisionProvider: "openai", ParserProvider: "upstage"},
	})
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	want := DirStats{Scanned: 5, Matched: 4, Succeeded: 2, Deduplicated: 1, Failed: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if len(runner.seen) != 3 {
		t.Fatalf("runner calls = %d, want 3", len(runner.seen))
	}
	for _, req := range runner.seen {
		if req.Ref != "" || req.Document == nil || req.VisionProvider != "openai" {
			t.Errorf("request = %+v, want document with template providers", req)
		}
	}

	byName := map[string]FileResult{}
	for _, r := range results {
		byName[filepath.Base(r.Path)] = r
	}
	if r := byName["z-dup.pdf"]; !r.Deduplicated || r.HashHex != byName["a.pdf"].HashHex {
		t.Errorf("z-dup.pdf = %+v, want deduplicated against a.pdf", r)
	}
	if r := byName["b.png"]; r.Status != constants.RecordStatusError || r.Err == "" || r.RecordID == "" {
		t.Errorf("b.png = %+v, want ERROR with record id", r)
	}
	if r := byName["c.jpg"]; r.Status != constants.RecordStatusCompleted || r.Err != "" {
		t.Errorf("c.jpg = %+v, want COMPLETED", r)
	}
}

func TestIngestDirectoryCancelled(t *testing.T) {
	root := testTree(t)
	runner := &fakeRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, stats, err := NewDirectoryIngestor(runner, nil).IngestDirectory(ctx, root, Options{SkipHidden: true})
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}
	if len(runner.seen) != 0 {
		t.Errorf("runner calls = %d, want 0", len(runner.seen))
	}
	if stats.Failed != 3 || stats.Deduplicated != 1 {
		t.Errorf("stats = %+v, want 3 failed and 1 deduplicated", stats)
	}
}
