// Package pipeline turns a document into a reconciled health checkup record:
// it rasterizes and parses the document, runs three inference strategies
// over the result, attributes every extracted value to a page and merges
// the three candidates into one record.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
	"github.com/joseph-ayodele/checkup-extractor/internal/retry"
)

// StrategyResult is one candidate record with its page attribution.
type StrategyResult struct {
	Strategy constants.Strategy
	Record   checkup.Record
	Pages    checkup.PageMap
	Attempts int
	// Err is the last error of a strategy that fell back to an empty record.
	Err error
}

// Candidates holds one result per strategy.
type Candidates map[constants.Strategy]StrategyResult

// ExecutorConfig tunes the retry policy applied to each strategy.
type ExecutorConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Lenient     bool
}

// Inputs are what the strategies share.
type Inputs struct {
	Vision   provider.VisionProvider
	Model    string
	APIKey   string
	Images   []document.Image
	Markdown string
	OCR      ocr.Result
}

// Executor runs the total, text and image strategies concurrently.
type Executor struct {
	cfg ExecutorConfig
	log *slog.Logger
}

func NewExecutor(cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return &Executor{cfg: cfg, log: logger}
}

// Run executes every strategy. A strategy that exhausts its attempts
// contributes an empty record; an authentication failure or cancellation
// fails the whole run.
func (e *Executor) Run(ctx context.Context, in Inputs) (Candidates, error) {
	if in.Vision == nil {
		return nil, errors.New("no vision provider")
	}

	results := make([]StrategyResult, len(constants.Strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range constants.Strategies {
		i, s := i, s
		g.Go(func() error {
			res, err := e.runStrategy(gctx, s, in)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(Candidates, len(results))
	for _, r := range results {
		out[r.Strategy] = r
	}
	return out, nil
}

func (e *Executor) runStrategy(ctx context.Context, s constants.Strategy, in Inputs) (StrategyResult, error) {
	start := time.Now()
	log := common.Logger(ctx, e.log)
	req := provider.VisionRequest{
		Model:    in.Model,
		APIKey:   in.APIKey,
		Strategy: s,
		Lenient:  e.cfg.Lenient,
	}
	switch s {
	case constants.StrategyTotal:
		req.Images, req.Markdown = in.Images, in.Markdown
	case constants.StrategyText:
		req.Markdown = in.Markdown
	case constants.StrategyImage:
		req.Images = in.Images
	}

	policy := retry.Policy{
		MaxAttempts: e.cfg.MaxAttempts,
		Backoff:     e.cfg.Backoff,
		IsRetryable: provider.IsRetryable,
		OnRetry: func(attempt int, err error) {
			log.Warn("strategy.attempt_failed",
				"strategy", s,
				"provider", in.Vision.Name(),
				"attempt", attempt,
				"err", err,
			)
		},
	}
	rec, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (checkup.Record, error) {
		return in.Vision.Infer(ctx, req)
	})

	if err != nil {
		if errors.Is(err, provider.ErrAuth) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			log.Error("strategy.failed", "strategy", s, "attempts", attempts, "err", err)
			return StrategyResult{}, err
		}
		log.Warn("strategy.exhausted",
			"strategy", s,
			"attempts", attempts,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return StrategyResult{
			Strategy: s,
			Record:   checkup.EmptyRecord(),
			Pages:    checkup.PageMap{},
			Attempts: attempts,
			Err:      err,
		}, nil
	}

	pages := AttributePages(rec, in.OCR)
	log.Info("strategy.ok",
		"strategy", s,
		"attempts", attempts,
		"fields", len(rec.NonNullKeys()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return StrategyResult{Strategy: s, Record: rec, Pages: pages, Attempts: attempts}, nil
}

// AttributePages looks up every non-null value of rec in the OCR words. Keys
// whose value is not found map to nil.
func AttributePages(rec checkup.Record, res ocr.Result) checkup.PageMap {
	pages := checkup.PageMap{}
	for _, key := range rec.NonNullKeys() {
		v, _ := rec.Value(key)
		if n, ok := ocr.BestPage(res, v); ok {
			pages[key] = checkup.Page(n)
		} else {
			pages[key] = nil
		}
	}
	return pages
}
