// Package server exposes the extraction pipeline over HTTP (chi) and gRPC.
// Both surfaces share the Submitter, which validates the provider selection,
// creates the PARSING record and hands the parse to the background queue.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/internal/async"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

// RecordStarter is satisfied by *pipeline.Processor.
type RecordStarter interface {
	Start(ctx context.Context, req pipeline.Request) (*entity.HealthRecord, error)
	Abort(ctx context.Context, id uuid.UUID, cause error)
}

// RefChecker is satisfied by *document.Loader.
type RefChecker interface {
	CheckRef(ref string) error
}

// Defaults fill in providers a request leaves empty.
type Defaults struct {
	VisionProvider string
	ParserProvider string
}

type Submitter struct {
	registry  *provider.Registry
	processor RecordStarter
	queue     async.Queue
	refs      RefChecker
	defaults  Defaults
	logger    *slog.Logger
}

// NewSubmitter builds a Submitter. refs vets document references before a
// record is created; nil accepts any reference.
func NewSubmitter(registry *provider.Registry, processor RecordStarter, queue async.Queue, refs RefChecker, defaults Defaults, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{registry: registry, processor: processor, queue: queue, refs: refs, defaults: defaults, logger: logger}
}

// Prepare applies the defaults and checks the document reference and the
// provider selection. The returned error wraps common.ErrInvalidInput.
func (s *Submitter) Prepare(req pipeline.Request) (pipeline.Request, error) {
	if req.VisionProvider == "" {
		req.VisionProvider = s.defaults.VisionProvider
	}
	if req.ParserProvider == "" {
		req.ParserProvider = s.defaults.ParserProvider
	}
	if req.Document == nil && req.Ref == "" {
		return req, fmt.Errorf("%w: a file or url is required", common.ErrInvalidInput)
	}
	if req.Document == nil && s.refs != nil {
		if err := s.refs.CheckRef(req.Ref); err != nil {
			return req, fmt.Errorf("%w: url: %v", common.ErrInvalidInput, err)
		}
	}
	if err := pipeline.CheckProviders(s.registry, req); err != nil {
		return req, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return req, nil
}

// Submit starts a record and queues its parse. If the queue refuses the job
// the record is moved to ERROR before returning.
func (s *Submitter) Submit(ctx context.Context, req pipeline.Request) (*entity.HealthRecord, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.processor.Start(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start record: %w", err)
	}
	job := async.Job{
		RecordID:    rec.ID,
		Request:     req,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(ctx),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.processor.Abort(ctx, rec.ID, err)
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	s.logger.Info("submit.queued",
		"req_id", job.RequestID,
		"record_id", rec.ID,
		"source", rec.Source,
		"vision", req.VisionProvider,
		"parser", req.ParserProvider,
	)
	return rec, nil
}
