package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
	"github.com/joseph-ayodele/checkup-extractor/internal/repository"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RecordReader is the read side of the record store.
type RecordReader interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.HealthRecord, error)
	List(ctx context.Context, opts repository.ListOptions) ([]*entity.HealthRecord, error)
}

// Exporter is satisfied by *export.Service.
type Exporter interface {
	ExportXLSX(ctx context.Context, limit int) ([]byte, error)
}

// Handler serves the health-data API.
type Handler struct {
	registry  *provider.Registry
	submitter *Submitter
	records   RecordReader
	exporter  Exporter
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(registry *provider.Registry, submitter *Submitter, records RecordReader, exporter Exporter, maxUploadMB int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &Handler{
		registry:  registry,
		submitter: submitter,
		records:   records,
		exporter:  exporter,
		maxUpload: int64(maxUploadMB) << 20,
		logger:    logger,
	}
}

// submitRequest is the JSON body of POST /api/health-data. Multipart uploads
// use the same names as form fields.
type submitRequest struct {
	URL            string `json:"url"`
	VisionProvider string `json:"visionProvider"`
	VisionModel    string `json:"visionModel"`
	VisionAPIKey   string `json:"visionApiKey"`
	ParserProvider string `json:"parserProvider"`
	ParserModel    string `json:"parserModel"`
	ParserAPIKey   string `json:"parserApiKey"`
	OCRProvider    string `json:"ocrProvider"`
}

func (s submitRequest) toPipeline() pipeline.Request {
	return pipeline.Request{
		Ref:            s.URL,
		VisionProvider: s.VisionProvider,
		VisionModel:    s.VisionModel,
		VisionAPIKey:   s.VisionAPIKey,
		ParserProvider: s.ParserProvider,
		ParserModel:    s.ParserModel,
		ParserAPIKey:   s.ParserAPIKey,
		OCRProvider:    s.OCRProvider,
	}
}

type submitResponse struct {
	ID     string                 `json:"id"`
	Status constants.RecordStatus `json:"status"`
}

type focusView struct {
	Field string     `json:"field"`
	Page  *int       `json:"page"`
	Words []ocr.Word `json:"words"`
}

type recordResponse struct {
	*entity.HealthRecord
	Focus *focusView `json:"focus,omitempty"`
}

// ListProviders handles GET /api/providers.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.registry.List(r.Context())})
}

// SubmitHealthData handles POST /api/health-data with either a multipart
// "file" upload or a JSON body naming a url.
func (h *Handler) SubmitHealthData(w http.ResponseWriter, r *http.Request) {
	ctx := common.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))

	req, err := h.decodeSubmit(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.submitter.Submit(ctx, req)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{ID: rec.ID.String(), Status: rec.Status})
}

func (h *Handler) decodeSubmit(w http.ResponseWriter, r *http.Request) (pipeline.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid request body: %v", err)
		}
		return body.toPipeline(), nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return pipeline.Request{}, fmt.Errorf("invalid multipart form: %v", err)
	}
	body := submitRequest{
		URL:            r.FormValue("url"),
		VisionProvider: r.FormValue("visionProvider"),
		VisionModel:    r.FormValue("visionModel"),
		VisionAPIKey:   r.FormValue("visionApiKey"),
		ParserProvider: r.FormValue("parserProvider"),
		ParserModel:    r.FormValue("parserModel"),
		ParserAPIKey:   r.FormValue("parserApiKey"),
		OCRProvider:    r.FormValue("ocrProvider"),
	}
	req := body.toPipeline()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("read file: %v", err)
	}
	doc, err := document.New(header.Filename, data)
	if err != nil {
		return pipeline.Request{}, err
	}
	req.Document = &doc
	return req, nil
}

// ListHealthData handles GET /api/health-data?status=&limit=.
func (h *Handler) ListHealthData(w http.ResponseWriter, r *http.Request) {
	opts := repository.ListOptions{}
	if s := r.URL.Query().Get("status"); s != "" {
		opts.Status = constants.RecordStatus(s)
		switch opts.Status {
		case constants.RecordStatusParsing, constants.RecordStatusCompleted, constants.RecordStatusError:
		default:
			writeError(w, http.StatusBadRequest, "status must be PARSING, COMPLETED or ERROR")
			return
		}
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Limit = limit

	recs, err := h.records.List(r.Context(), opts)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if recs == nil {
		recs = []*entity.HealthRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

// GetHealthData handles GET /api/health-data/{id}. With ?focus=<field> the
// response also carries the OCR words matching that field's value on its
// attributed page.
func (h *Handler) GetHealthData(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	resp := recordResponse{HealthRecord: rec}
	if key := r.URL.Query().Get("focus"); key != "" {
		if _, ok := checkup.LookupField(key); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown field %q", key))
			return
		}
		resp.Focus = focusFor(rec, key)
	}
	writeJSON(w, http.StatusOK, resp)
}

func focusFor(rec *entity.HealthRecord, key string) *focusView {
	view := &focusView{Field: key, Words: []ocr.Word{}}
	if rec.Data == nil || rec.Metadata == nil {
		return view
	}
	page, ok := rec.Metadata.Pages.Lookup(key)
	if !ok {
		return view
	}
	view.Page = &page
	if value, ok := rec.Data.Value(key); ok {
		if words := ocr.FocusedWords(rec.Metadata.OCR, page, value); len(words) > 0 {
			view.Words = words
		}
	}
	return view
}

// ExportHealthData handles GET /api/health-data/export.
func (h *Handler) ExportHealthData(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := h.exporter.ExportXLSX(r.Context(), limit)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="health-records.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// writeFailure maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "health record not found")
	case errors.Is(err, common.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		h.logger.Error("http.request.failed",
			"req_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
