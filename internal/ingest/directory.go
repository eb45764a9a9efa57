// Package ingest runs the extraction pipeline over every supported document
// under a directory.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
)

// Runner is satisfied by *pipeline.Processor.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*entity.HealthRecord, pipeline.Output, error)
}

// FileResult is the outcome for one file. Deduplicated files share content
// with an earlier file in the same walk and are not parsed again.
type FileResult struct {
	Path         string
	HashHex      string
	RecordID     string
	Status       constants.RecordStatus
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Options tune IngestDirectory. Template carries the provider selection
// applied to every file.
type Options struct {
	SkipHidden  bool
	Concurrency int
	Template    pipeline.Request
}

type DirectoryIngestor struct {
	runner Runner
	logger *slog.Logger
}

func NewDirectoryIngestor(runner Runner, logger *slog.Logger) *DirectoryIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryIngestor{runner: runner, logger: logger}
}

// Scan walks root and returns the files with a supported extension, in
// lexical order.
func Scan(root string, skipHidden bool) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("directory is required")
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if _, ok := constants.ContentTypeForExt(filepath.Ext(path)); !ok {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}
	return paths, stats, nil
}

// IngestDirectory parses every supported file under root, at most
// opts.Concurrency at a time. A failing file does not stop the others;
// results come back in scan order.
func (d *DirectoryIngestor) IngestDirectory(ctx context.Context, root string, opts Options) ([]FileResult, DirStats, error) {
	start := time.Now()
	paths, stats, err := Scan(root, opts.SkipHidden)
	if err != nil {
		return nil, stats, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	results := make([]FileResult, len(paths))
	seen := make(map[string]int, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, path := range paths {
		i, path := i, path
		results[i].Path = path

		data, err := os.ReadFile(path)
		if err != nil {
			results[i].Err = err.Error()
			continue
		}
		sum := sha256.Sum256(data)
		results[i].HashHex = hex.EncodeToString(sum[:])
		if first, ok := seen[results[i].HashHex]; ok {
			results[i].Deduplicated = true
			d.logger.Info("ingest.deduplicated", "path", path, "same_as", paths[first])
			continue
		}
		seen[results[i].HashHex] = i

		doc, err := document.New(path, data)
		if err != nil {
			results[i].Err = err.Error()
			continue
		}
		req := opts.Template
		req.Ref = ""
		req.Document = &doc

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err.Error()
				return nil
			}
			rec, _, err := d.runner.Run(gctx, req)
			if rec != nil {
				results[i].RecordID = rec.ID.String()
			}
			if err != nil {
				results[i].Status = constants.RecordStatusError
				results[i].Err = err.Error()
				d.logger.Warn("ingest.file.failed", "path", path, "error", err)
				return nil
			}
			results[i].Status = constants.RecordStatusCompleted
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch {
		case r.Deduplicated:
			stats.Deduplicated++
		case r.Err != "":
			stats.Failed++
		default:
			stats.Succeeded++
		}
	}
	d.logger.Info("ingest.directory.ok",
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
