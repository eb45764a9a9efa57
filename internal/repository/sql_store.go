package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
)

const healthRecordsTable = "health_records"

var healthRecordColumns = []string{
	"id", "status", "source",
	"vision_provider", "vision_model", "parser_provider", "parser_model",
	"data", "metadata", "error_message",
	"created_at", "updated_at",
}

// schema per dialect; timestamps are unix milliseconds and JSON is stored as text
var healthRecordDDL = map[string][]string{
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS health_records (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			vision_provider TEXT NOT NULL DEFAULT '',
			vision_model TEXT NOT NULL DEFAULT '',
			parser_provider TEXT NOT NULL DEFAULT '',
			parser_model TEXT NOT NULL DEFAULT '',
			data TEXT,
			metadata TEXT,
			error_message TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS health_records_created_at_idx ON health_records (created_at DESC)`,
	},
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS health_records (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			vision_provider TEXT NOT NULL DEFAULT '',
			vision_model TEXT NOT NULL DEFAULT '',
			parser_provider TEXT NOT NULL DEFAULT '',
			parser_model TEXT NOT NULL DEFAULT '',
			data TEXT,
			metadata TEXT,
			error_message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS health_records_created_at_idx ON health_records (created_at DESC)`,
	},
}

// SQLStore keeps health records in Postgres or SQLite. Queries are built
// with the ent SQL builder so both dialects share one code path.
type SQLStore struct {
	drv *entsql.Driver
	log *slog.Logger
	now func() time.Time
}

func NewSQLStore(drv *entsql.Driver, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{drv: drv, log: logger, now: time.Now}
}

var _ HealthRecordRepository = (*SQLStore)(nil)

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

// Migrate creates the table and index if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts, ok := healthRecordDDL[s.drv.Dialect()]
	if !ok {
		return fmt.Errorf("migrate: unsupported dialect %q", s.drv.Dialect())
	}
	for _, stmt := range stmts {
		if _, err := s.drv.ExecContext(ctx, stmt); err != nil {
			s.log.Error("health_records migrate failed", "err", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.log.Info("health_records schema ready", "dialect", s.drv.Dialect())
	return nil
}

func (s *SQLStore) Start(ctx context.Context, in entity.NewHealthRecord) (*entity.HealthRecord, error) {
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

	query, args := s.builder().Insert(healthRecordsTable).
		Columns(healthRecordColumns...).
		Values(
			rec.ID.String(), string(rec.Status), rec.Source,
			rec.VisionProvider, rec.VisionModel, rec.ParserProvider, rec.ParserModel,
			nil, nil, nil,
			now.UnixMilli(), now.UnixMilli(),
		).
		Query()
	if _, err := s.drv.ExecContext(ctx, query, args...); err != nil {
		s.log.Error("health_record start failed", "source", in.Source, "err", err)
		return nil, err
	}
	s.log.Info("health_record started", "record_id", rec.ID, "source", in.Source)
	return rec, nil
}

func (s *SQLStore) Complete(ctx context.Context, id uuid.UUID, data checkup.Record, meta entity.RecordMetadata) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = s.transition(ctx, id, constants.RecordStatusCompleted, func(u *entsql.UpdateBuilder) {
		u.Set("data", string(dataJSON)).
			Set("metadata", string(metaJSON)).
			SetNull("error_message")
	})
	if err != nil {
		s.log.Error("health_record finish(COMPLETED) failed", "record_id", id, "err", err)
		return err
	}
	s.log.Info("health_record finished (COMPLETED)", "record_id", id)
	return nil
}

func (s *SQLStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	err := s.transition(ctx, id, constants.RecordStatusError, func(u *entsql.UpdateBuilder) {
		u.Set("error_message", message)
	})
	if err != nil {
		s.log.Error("health_record finish(ERROR) failed", "record_id", id, "err", err)
		return err
	}
	s.log.Warn("health_record finished (ERROR)", "record_id", id, "error", message)
	return nil
}

// transition moves a PARSING record to status. The status guard lives in
// the WHERE clause so concurrent finishers cannot both win.
func (s *SQLStore) transition(ctx context.Context, id uuid.UUID, to constants.RecordStatus, set func(*entsql.UpdateBuilder)) error {
	u := s.builder().Update(healthRecordsTable).
		Set("status", string(to)).
		Set("updated_at", s.now().UTC().UnixMilli())
	set(u)
	query, args := u.Where(entsql.And(
		entsql.EQ("id", id.String()),
		entsql.EQ("status", string(constants.RecordStatusParsing)),
	)).Query()

	res, err := s.drv.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return transitionError(id, cur.Status, to)
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*entity.HealthRecord, error) {
	query, args := s.builder().Select(healthRecordColumns...).
		From(entsql.Table(healthRecordsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	recs, err := s.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrRecordNotFound
	}
	return recs[0], nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*entity.HealthRecord, error) {
	sel := s.builder().Select(healthRecordColumns...).
		From(entsql.Table(healthRecordsTable))
	if opts.Status != "" {
		sel = sel.Where(entsql.EQ("status", string(opts.Status)))
	}
	query, args := sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(opts.limit()).
		Query()
	recs, err := s.query(ctx, query, args)
	if err != nil {
		s.log.Error("failed to list health records", "status", opts.Status, "error", err)
		return nil, err
	}
	return recs, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args []any) ([]*entity.HealthRecord, error) {
	rows, err := s.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.HealthRecord
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanHealthRecord(rows *sql.Rows) (*entity.HealthRecord, error) {
	var (
		id, status, source           string
		visionProvider, visionModel  string
		parserProvider, parserModel  string
		data, metadata, errorMessage sql.NullString
		createdAt, updatedAt         int64
	)
	if err := rows.Scan(
		&id, &status, &source,
		&visionProvider, &visionModel, &parserProvider, &parserModel,
		&data, &metadata, &errorMessage,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("scan id: %w", err)
	}
	rec := &entity.HealthRecord{
		ID:             rid,
		Status:         constants.RecordStatus(status),
		Source:         source,
		VisionProvider: visionProvider,
		VisionModel:    visionModel,
		ParserProvider: parserProvider,
		ParserModel:    parserModel,
		CreatedAt:      time.UnixMilli(createdAt).UTC(),
		UpdatedAt:      time.UnixMilli(updatedAt).UTC(),
	}
	if data.Valid {
		var r checkup.Record
		if err := json.Unmarshal([]byte(data.String), &r); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		rec.Data = &r
	}
	if metadata.Valid {
		var m entity.RecordMetadata
		if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		rec.Metadata = &m
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		rec.ErrorMessage = &msg
	}
	return rec, nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.drv, 3*time.Second, s.log)
}
