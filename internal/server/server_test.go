package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/async"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
	"github.com/joseph-ayodele/checkup-extractor/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubVision struct{ provider.Base }

func (stubVision) Infer(context.Context, provider.VisionRequest) (checkup.Record, error) {
	return checkup.NewRecord(), nil
}

type stubParser struct{ provider.Base }

func (stubParser) OCR(context.Context, document.Document, provider.Options) (ocr.Result, error) {
	return ocr.Result{}, nil
}

func (stubParser) Parse(context.Context, document.Document, provider.Options) (string, error) {
	return "", nil
}

func testRegistry() *provider.Registry {
	return provider.NewRegistry(
		stubVision{provider.NewBase("stubvision", "Stub Vision", false, true)},
		stubParser{provider.NewBase("stubparser", "Stub Parser", false, true)},
		stubVision{provider.NewBase("offvision", "Disabled Vision", true, false)},
	)
}

// fakeStore plays the processor and the record store.
type fakeStore struct {
	mu      sync.Mutex
	recs    map[uuid.UUID]*entity.HealthRecord
	aborted []uuid.UUID
	runErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[uuid.UUID]*entity.HealthRecord{}}
}

func (s *fakeStore) Start(_ context.Context, req pipeline.Request) (*entity.HealthRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	rec := &entity.HealthRecord{
		ID:             uuid.New(),
		Status:         constants.RecordStatusParsing,
		Source:         req.Source(),
		VisionProvider: req.VisionProvider,
		ParserProvider: req.ParserProvider,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.recs[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Abort(_ context.Context, id uuid.UUID, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := common.SanitizeForClient(cause)
	s.recs[id].Status = constants.RecordStatusError
	s.recs[id].ErrorMessage = &msg
	s.aborted = append(s.aborted, id)
}

func (s *fakeStore) Run(ctx context.Context, req pipeline.Request) (*entity.HealthRecord, pipeline.Output, error) {
	rec, _ := s.Start(ctx, req)
	if s.runErr != nil {
		s.Abort(ctx, rec.ID, s.runErr)
		return rec, pipeline.Output{}, s.runErr
	}
	data := checkup.NewRecord()
	data.Tests["glucose"] = &checkup.TestResult{Value: checkup.StringPtr("95")}
	s.put(&entity.HealthRecord{ID: rec.ID, Status: constants.RecordStatusCompleted, Source: rec.Source, Data: &data})
	return rec, pipeline.Output{Data: []checkup.Record{data}}, nil
}

func (s *fakeStore) put(rec *entity.HealthRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*entity.HealthRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) List(_ context.Context, opts repository.ListOptions) ([]*entity.HealthRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.HealthRecord
	for _, r := range s.recs {
		if opts.Status == "" || r.Status == opts.Status {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Shutdown(context.Context) {}

type fakeExporter struct{ limit int }

func (e *fakeExporter) ExportXLSX(_ context.Context, limit int) ([]byte, error) {
	e.limit = limit
	return []byte("PK\x03\x04xlsx"), nil
}

type fixture struct {
	store    *fakeStore
	queue    *fakeQueue
	exporter *fakeExporter
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{store: newFakeStore(), queue: &fakeQueue{}, exporter: &fakeExporter{}}
	reg := testRegistry()
	sub := NewSubmitter(reg, f.store, f.queue, document.NewLoader(testLogger(), document.WithLocalFiles(false)), Defaults{VisionProvider: "stubvision", ParserProvider: "stubparser"}, testLogger())
	h := NewHandler(reg, sub, f.store, f.exporter, 1, testLogger())
	f.router = NewRouter(h, HTTPConfig{AllowedOrigins: []string{"http://localhost:3000"}})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestListProviders(t *testing.T) {
	f := newFixture()
	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Providers []provider.Descriptor `json:"providers"`
	}
	decodeBody(t, rr, &body)
	if len(body.Providers) != 3 {
		t.Fatalf("providers = %d, want 3", len(body.Providers))
	}
	if body.Providers[0].Name != "stubvision" || !body.Providers[0].Enabled {
		t.Errorf("providers[0] = %+v, want enabled stubvision", body.Providers[0])
	}
}

func TestSubmitJSON(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/health-data",
		strings.NewReader(`{"url":"https://example.com/checkup.pdf","visionModel":"v-1"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := f.do(req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rr.Code, rr.Body.String())
	}

	var body submitResponse
	decodeBody(t, rr, &body)
	if body.Status != constants.RecordStatusParsing {
		t.Errorf("status = %q, want PARSING", body.Status)
	}
	if len(f.queue.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(f.queue.jobs))
	}
	job := f.queue.jobs[0]
	if job.RecordID.String() != body.ID {
		t.Errorf("job record = %s, want %s", job.RecordID, body.ID)
	}
	if job.Request.VisionProvider != "stubvision" || job.Request.ParserProvider != "stubparser" {
		t.Errorf("providers = %q/%q, want defaults", job.Request.VisionProvider, job.Request.ParserProvider)
	}
	if job.Request.VisionModel != "v-1" || job.Request.Ref != "https://example.com/checkup.pdf" {
		t.Errorf("request = %+v", job.Request)
	}
	if job.RequestID == "" {
		t.Error("job request id is empty")
	}
}

func TestSubmitMultipart(t *testing.T) {
	f := newFixture()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("visionProvider", "stubvision")
	_ = mw.WriteField("parserProvider", "stubparser")
	fw, err := mw.CreateFormFile("file", "checkup.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\nrest-of-image"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/health-data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := f.do(req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rr.Code, rr.Body.String())
	}

	doc := f.queue.jobs[0].Request.Document
	if doc == nil {
		t.Fatal("job has no document")
	}
	if doc.Name != "checkup.png" || doc.ContentType != constants.ContentTypeImage {
		t.Errorf("document = %s (%s), want checkup.png (image)", doc.Name, doc.ContentType)
	}
}

func TestSubmitRejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		queueErr error
		want     int
		aborted  bool
	}{
		{"no document", `{}`, nil, http.StatusBadRequest, false},
		{"malformed body", `{"url":`, nil, http.StatusBadRequest, false},
		{"unknown provider", `{"url":"https://example.com/a.pdf","visionProvider":"nope"}`, nil, http.StatusBadRequest, false},
		{"disabled provider", `{"url":"https://example.com/a.pdf","visionProvider":"offvision"}`, nil, http.StatusBadRequest, false},
		{"parser lacks capability", `{"url":"https://example.com/a.pdf","parserProvider":"stubvision"}`, nil, http.StatusBadRequest, false},
		{"server-local path", `{"url":"/etc/private/checkup.pdf"}`, nil, http.StatusBadRequest, false},
		{"file url", `{"url":"file:///etc/private/checkup.pdf"}`, nil, http.StatusBadRequest, false},
		{"relative path", `{"url":"checkup.pdf"}`, nil, http.StatusBadRequest, false},
		{"queue closed", `{"url":"https://example.com/a.pdf"}`, async.ErrQueueClosed, http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.queue.err = tt.queueErr
			req := httptest.NewRequest(http.MethodPost, "/api/health-data", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := f.do(req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
			if got := len(f.store.aborted) == 1; got != tt.aborted {
				t.Errorf("aborted = %v, want %v", got, tt.aborted)
			}
			if !tt.aborted && len(f.store.recs) != 0 {
				t.Errorf("records = %d, want none created", len(f.store.recs))
			}
		})
	}
}

func completedRecord() *entity.HealthRecord {
	data := checkup.NewRecord()
	data.Meta["name"] = checkup.StringPtr("Jane Doe")
	data.Tests["systolic_bp"] = &checkup.TestResult{Value: checkup.StringPtr("120"), Unit: checkup.StringPtr("mmHg")}

	p1 := ocr.NewPage(0, 1000, 1400)
	p1.AddWord("Jane", 0.9, ocr.BoundingBox{L: 10, T: 10, R: 60, B: 30}, ocr.OriginTopLeft)
	p2 := ocr.NewPage(1, 1000, 1400)
	p2.AddWord("BP", 0.9, ocr.BoundingBox{L: 10, T: 10, R: 40, B: 30}, ocr.OriginTopLeft)
	p2.AddWord("120", 0.9, ocr.BoundingBox{L: 50, T: 10, R: 90, B: 30}, ocr.OriginTopLeft)

	now := time.Now().UTC()
	return &entity.HealthRecord{
		ID:     uuid.New(),
		Status: constants.RecordStatusCompleted,
		Source: "checkup.pdf",
		Data:   &data,
		Metadata: &entity.RecordMetadata{
			Pages: checkup.PageMap{"name": checkup.Page(1), "systolic_bp": checkup.Page(2)},
			OCR:   ocr.Build("stubparser", []*ocr.Page{p1, p2}),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGetHealthData(t *testing.T) {
	f := newFixture()
	rec := completedRecord()
	f.store.put(rec)

	type focusBody struct {
		Focus *struct {
			Field string     `json:"field"`
			Page  *int       `json:"page"`
			Words []ocr.Word `json:"words"`
		} `json:"focus"`
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}

	t.Run("found", func(t *testing.T) {
		rr := f.do(httptest.NewRequest(http.MethodGet, "/api/health-data/"+rec.ID.String(), nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var body focusBody
		decodeBody(t, rr, &body)
		if body.Status != "COMPLETED" || body.Focus != nil {
			t.Errorf("body = %+v, want COMPLETED without focus", body)
		}
		if body.Data["name"] != "Jane Doe" {
			t.Errorf("data.name = %v, want Jane Doe", body.Data["name"])
		}
	})

	t.Run("focus", func(t *testing.T) {
		rr := f.do(httptest.NewRequest(http.MethodGet, "/api/health-data/"+rec.ID.String()+"?focus=systolic_bp", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var body focusBody
		decodeBody(t, rr, &body)
		if body.Focus == nil || body.Focus.Page == nil || *body.Focus.Page != 2 {
			t.Fatalf("focus = %+v, want page 2", body.Focus)
		}
		if len(body.Focus.Words) != 1 || body.Focus.Words[0].Text != "120" {
			t.Errorf("focus words = %+v, want [120]", body.Focus.Words)
		}
	})

	t.Run("focus without page", func(t *testing.T) {
		rr := f.do(httptest.NewRequest(http.MethodGet, "/api/health-data/"+rec.ID.String()+"?focus=glucose", nil))
		var body focusBody
		decodeBody(t, rr, &body)
		if body.Focus == nil || body.Focus.Page != nil || len(body.Focus.Words) != 0 {
			t.Errorf("focus = %+v, want no page and no words", body.Focus)
		}
	})

	errs := []struct {
		name string
		path string
		want int
	}{
		{"unknown focus", "/api/health-data/" + rec.ID.String() + "?focus=shoe_size", http.StatusBadRequest},
		{"bad id", "/api/health-data/not-a-uuid", http.StatusBadRequest},
		{"missing", "/api/health-data/" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestListHealthData(t *testing.T) {
	f := newFixture()
	f.store.put(completedRecord())
	_, _ = f.store.Start(context.Background(), pipeline.Request{Ref: "b.pdf"})

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/health-data?status=COMPLETED", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Records []entity.HealthRecord `json:"records"`
	}
	decodeBody(t, rr, &body)
	if len(body.Records) != 1 || body.Records[0].Source != "checkup.pdf" {
		t.Errorf("records = %+v, want the completed one", body.Records)
	}

	for _, q := range []string{"?status=DONE", "?limit=-1", "?limit=ten"} {
		rr := f.do(httptest.NewRequest(http.MethodGet, "/api/health-data"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", q, rr.Code)
		}
	}
}

func TestExportHealthData(t *testing.T) {
	f := newFixture()
	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/health-data/export?limit=50", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q, want %q", ct, xlsxContentType)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "health-records.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Errorf("body = %q, want a zip", rr.Body.Bytes())
	}
	if f.exporter.limit != 50 {
		t.Errorf("limit = %d, want 50", f.exporter.limit)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodOptions, "/api/health-data", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := f.do(req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}
