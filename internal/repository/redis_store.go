package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/redis"
)

const (
	redisRecordPrefix = "health_record:"
	redisRecordIndex  = "health_records"
)

// RedisStore keeps each record as a JSON value under health_record:{id}
// and indexes ids by creation time in a sorted set.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, log: logger, now: time.Now}
}

var _ HealthRecordRepository = (*RedisStore)(nil)

func recordKey(id uuid.UUID) string { return redisRecordPrefix + id.String() }

func (s *RedisStore) Start(ctx context.Context, in entity.NewHealthRecord) (*entity.HealthRecord, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	rec := &entity.HealthRecord{
		ID:             uuid.New(),
		Status:         constants.RecordStatusParsing,
		Source:         in.Source,
		VisionProvider: in.VisionProvider,
		VisionModel:    in.VisionModel,
		ParserProvider: in.ParserProvider,
		ParserModel:    in.ParserModel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, recordKey(rec.ID), b, 0); err != nil {
		s.log.Error("health_record start failed", "source", in.Source, "err", err)
		return nil, err
	}
	if err := s.client.ZAdd(ctx, redisRecordIndex, float64(now.UnixMilli()), rec.ID.String()); err != nil {
		s.log.Error("health_record index failed", "record_id", rec.ID, "err", err)
		return nil, err
	}
	s.log.Info("health_record started", "record_id", rec.ID, "source", in.Source)
	return rec, nil
}

func (s *RedisStore) Complete(ctx context.Context, id uuid.UUID, data checkup.Record, meta entity.RecordMetadata) error {
	err := s.transition(ctx, id, constants.RecordStatusCompleted, func(rec *entity.HealthRecord) {
		rec.Data = &data
		rec.Metadata = &meta
		rec.ErrorMessage = nil
	})
	if err != nil {
		s.log.Error("health_record finish(COMPLETED) failed", "record_id", id, "err", err)
		return err
	}
	s.log.Info("health_record finished (COMPLETED)", "record_id", id)
	return nil
}

func (s *RedisStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	err := s.transition(ctx, id, constants.RecordStatusError, func(rec *entity.HealthRecord) {
		rec.ErrorMessage = &message
	})
	if err != nil {
		s.log.Error("health_record finish(ERROR) failed", "record_id", id, "err", err)
		return err
	}
	s.log.Warn("health_record finished (ERROR)", "record_id", id, "error", message)
	return nil
}

func (s *RedisStore) transition(ctx context.Context, id uuid.UUID, to constants.RecordStatus, apply func(*entity.HealthRecord)) error {
	err := s.client.Update(ctx, recordKey(id), func(cur string) (string, error) {
		var rec entity.HealthRecord
		if err := json.Unmarshal([]byte(cur), &rec); err != nil {
			return "", fmt.Errorf("decode record: %w", err)
		}
		if rec.Status != constants.RecordStatusParsing {
			return "", transitionError(id, rec.Status, to)
		}
		rec.Status = to
		rec.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		apply(&rec)
		b, err := json.Marshal(rec)
		return string(b), err
	})
	if redis.IsNil(err) {
		return ErrRecordNotFound
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*entity.HealthRecord, error) {
	raw, err := s.client.Get(ctx, recordKey(id))
	if redis.IsNil(err) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec entity.HealthRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// List walks the index newest first. With a status filter it keeps reading
// pages of the index until the limit is met.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]*entity.HealthRecord, error) {
	limit := opts.limit()
	page := int64(limit)
	if opts.Status != "" {
		page *= 4
	}

	var out []*entity.HealthRecord
	for start := int64(0); len(out) < limit; start += page {
		ids, err := s.client.ZRevRange(ctx, redisRecordIndex, start, start+page-1)
		if err != nil {
			s.log.Error("failed to list health records", "status", opts.Status, "error", err)
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = redisRecordPrefix + id
		}
		vals, err := s.client.MGet(ctx, keys...)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var rec entity.HealthRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
			if opts.Status != "" && rec.Status != opts.Status {
				continue
			}
			out = append(out, &rec)
			if len(out) == limit {
				break
			}
		}
		if int64(len(ids)) < page {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
