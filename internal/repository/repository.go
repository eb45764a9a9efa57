package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
)

var (
	ErrRecordNotFound    = fmt.Errorf("health record %w", common.ErrNotFound)
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ListOptions filters List. A zero Limit means 100.
type ListOptions struct {
	Status constants.RecordStatus
	Limit  int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 100
	}
	return o.Limit
}

// HealthRecordRepository stores parse outcomes. A record starts PARSING and
// moves exactly once to COMPLETED or ERROR; data and metadata are only ever
// written together with COMPLETED.
type HealthRecordRepository interface {
	Start(ctx context.Context, in entity.NewHealthRecord) (*entity.HealthRecord, error)
	Complete(ctx context.Context, id uuid.UUID, data checkup.Record, meta entity.RecordMetadata) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*entity.HealthRecord, error)
	List(ctx context.Context, opts ListOptions) ([]*entity.HealthRecord, error)
	Ping(ctx context.Context) error
}

func transitionError(id uuid.UUID, from constants.RecordStatus, to constants.RecordStatus) error {
	return fmt.Errorf("%w: record %s is %s, cannot move to %s", ErrInvalidTransition, id, from, to)
}
