package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/repository"
)

// Runner is satisfied by *Parser.
type Runner interface {
	Parse(ctx context.Context, req Request) (Output, error)
}

// Processor ties a parse to its persisted record: PARSING while the
// pipeline runs, then COMPLETED with the merged record or ERROR with a
// client-safe message.
type Processor struct {
	Logger  *slog.Logger
	Parser  Runner
	Records repository.HealthRecordRepository
}

func NewProcessor(logger *slog.Logger, parser Runner, records repository.HealthRecordRepository) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Parser: parser, Records: records}
}

// Start creates the record in PARSING state.
func (p *Processor) Start(ctx context.Context, req Request) (*entity.HealthRecord, error) {
	return p.Records.Start(ctx, entity.NewHealthRecord{
		Source:         req.Source(),
		VisionProvider: req.VisionProvider,
		VisionModel:    req.VisionModel,
		ParserProvider: req.ParserProvider,
		ParserModel:    req.ParserModel,
	})
}

// Process runs the parse for an already started record and stores the
// outcome. The returned error is the pipeline error, if any; the record is
// moved to ERROR in that case.
func (p *Processor) Process(ctx context.Context, id uuid.UUID, req Request) (Output, error) {
	ctx = common.WithRecordID(ctx, id.String())
	log := common.Logger(ctx, p.Logger)
	start := time.Now()

	out, err := p.Parser.Parse(ctx, req)
	if err != nil {
		log.Error("processor.parse.failed", "err", err)
		p.fail(ctx, id, err)
		return Output{}, err
	}

	meta := entity.RecordMetadata{Pages: out.Pages[0], OCR: out.OCRResults[0]}
	// the caller may have gone away; the outcome is still stored
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.Records.Complete(wctx, id, out.Data[0], meta); err != nil {
		log.Error("processor.complete.failed", "err", err)
		// a record that already left PARSING keeps its outcome
		if !errors.Is(err, repository.ErrInvalidTransition) {
			p.fail(ctx, id, err)
		}
		return Output{}, err
	}
	log.Info("processor.parse.ok",
		"fields", len(out.Data[0].NonNullKeys()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Run starts a record and processes it synchronously.
func (p *Processor) Run(ctx context.Context, req Request) (*entity.HealthRecord, Output, error) {
	rec, err := p.Start(ctx, req)
	if err != nil {
		return nil, Output{}, err
	}
	out, err := p.Process(ctx, rec.ID, req)
	if err != nil {
		return rec, Output{}, err
	}
	return rec, out, nil
}

// Abort moves a started record to ERROR without running the parse, for
// records that could not be scheduled.
func (p *Processor) Abort(ctx context.Context, id uuid.UUID, cause error) {
	p.Logger.Warn("processor.aborted", "record_id", id, "err", cause)
	p.fail(ctx, id, cause)
}

func (p *Processor) fail(ctx context.Context, id uuid.UUID, cause error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.Records.Fail(wctx, id, common.SanitizeForClient(cause)); err != nil {
		p.Logger.Error("processor.fail.failed", "record_id", id, "err", err)
	}
}
