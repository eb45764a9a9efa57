package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"
)

const maxResponseBytes = 64 << 20

// Transport posts requests to a provider backend and classifies failures.
type Transport struct {
	Provider string
	Client   *http.Client
	Logger   *slog.Logger
}

// NewTransport returns a transport with a client bounded by timeout.
func NewTransport(provider string, client *http.Client, timeout time.Duration, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Transport{Provider: provider, Client: client, Logger: logger}
}

// SendJSON posts body as JSON to url with optional headers and returns the
// raw response body.
func (t *Transport) SendJSON(ctx context.Context, op, url string, body any, headers map[string]string) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}
	return t.do(ctx, op, http.MethodPost, url, bytes.NewReader(bs), len(bs), headers)
}

// GetJSON fetches url and returns the raw response body.
func (t *Transport) GetJSON(ctx context.Context, op, url string, headers map[string]string) ([]byte, error) {
	return t.do(ctx, op, http.MethodGet, url, nil, 0, headers)
}

// FormFile is one file part of a multipart form.
type FormFile struct {
	Field    string
	FileName string
	MIME     string
	Data     []byte
}

// Form is a multipart body. Fields keep their order; a key may repeat.
type Form struct {
	Fields [][2]string
	Files  []FormFile
}

// Add appends a field.
func (f *Form) Add(key, value string) { f.Fields = append(f.Fields, [2]string{key, value}) }

// PostMultipart posts form to url.
func (t *Transport) PostMultipart(ctx context.Context, op, url string, form Form, headers map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, kv := range form.Fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}
	for _, f := range form.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.FileName))
		ct := f.MIME
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	hdr := map[string]string{"Content-Type": mw.FormDataContentType()}
	for k, v := range headers {
		hdr[k] = v
	}
	return t.do(ctx, op, http.MethodPost, url, &buf, buf.Len(), hdr)
}

func (t *Transport) do(ctx context.Context, op, method, url string, body io.Reader, size int, headers map[string]string) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	t.Logger.Info("provider.http.request",
		"req_id", reqID,
		"provider", t.Provider,
		"op", op,
		"method", method,
		"url", url,
		"content_length", size,
	)

	resp, err := t.Client.Do(req)
	if err != nil {
		t.Logger.Error("provider.http.send_error",
			"req_id", reqID, "provider", t.Provider, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, Classify(t.Provider, op, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.Logger.Warn("provider.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Classify(t.Provider, op, fmt.Errorf("read response: %w", err))
	}

	t.Logger.Info("provider.http.response",
		"req_id", reqID,
		"provider", t.Provider,
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, StatusError(t.Provider, op, resp.StatusCode, raw)
	}
	return raw, nil
}

// DecodeJSON unmarshals a provider payload, reporting failures as bad responses.
func DecodeJSON(provider, op string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return NewError(provider, op, ErrBadResponse, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
