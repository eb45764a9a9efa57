// Package docconv extracts document text locally with code.sajari.com/docconv.
package docconv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"code.sajari.com/docconv"

	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const Name = "docconv"

// ConvertFunc matches docconv.Convert.
type ConvertFunc func(r io.Reader, mimeType string, readability bool) (*docconv.Response, error)

type Client struct {
	provider.Base
	convert ConvertFunc
	timeout time.Duration
	log     *slog.Logger
}

type Option func(*Client)

// WithConverter replaces docconv.Convert (tests).
func WithConverter(f ConvertFunc) Option {
	return func(c *Client) { c.convert = f }
}

func New(timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := &Client{
		Base:    provider.NewBase(Name, "docconv (local)", false, true, provider.Model{ID: "text", Name: "Plain text"}),
		convert: docconv.Convert,
		timeout: timeout,
		log:     logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type converted struct {
	res *docconv.Response
	err error
}

// Parse returns the extracted text, one paragraph per non-empty line.
// docconv takes no context, so a call that outlives ctx is abandoned.
func (c *Client) Parse(ctx context.Context, doc document.Document, _ provider.Options) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan converted, 1)
	go func() {
		res, err := c.convert(bytes.NewReader(doc.Data), doc.MIME, false)
		done <- converted{res, err}
	}()

	var out converted
	select {
	case <-ctx.Done():
		return "", provider.Classify(Name, "parse", ctx.Err())
	case out = <-done:
	}
	if out.err != nil {
		c.log.Error("docconv.parse.failed", "name", doc.Name, "mime", doc.MIME, "error", out.err)
		return "", provider.NewError(Name, "parse", provider.ErrBadResponse, out.err)
	}
	if out.res == nil {
		return "", provider.NewError(Name, "parse", provider.ErrBadResponse, fmt.Errorf("empty response"))
	}

	var lines []string
	for _, ln := range strings.Split(out.res.Body, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	text := strings.Join(lines, "\n")
	c.log.Info("docconv.parse.ok",
		"name", doc.Name,
		"mime", doc.MIME,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var _ provider.DocumentProvider = (*Client)(nil)
