package async

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
)

var ErrQueueClosed = fmt.Errorf("queue is shutting down: %w", common.ErrUnavailable)

// Job is one background parse of an already started record.
type Job struct {
	RecordID    uuid.UUID
	Request     pipeline.Request
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// JobProcessor is satisfied by *pipeline.Processor.
type JobProcessor interface {
	Process(ctx context.Context, id uuid.UUID, req pipeline.Request) (pipeline.Output, error)
}
