package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// ObjectFetcher reads an object from object storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// ErrLocalRef is returned for local paths and file:// URLs when the loader
// only accepts remote references.
var ErrLocalRef = errors.New("local document references are not allowed")

// Loader resolves a document reference: a local path, file:// URL,
// http(s) URL or s3://bucket/key.
type Loader struct {
	http       *http.Client
	objects    ObjectFetcher
	maxBytes   int64
	localFiles bool
	logger     *slog.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for http(s) references.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.http = c
		}
	}
}

// WithObjectFetcher enables s3:// references.
func WithObjectFetcher(f ObjectFetcher) LoaderOption {
	return func(l *Loader) { l.objects = f }
}

// WithMaxBytes caps the size of a loaded document.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithLocalFiles toggles local paths and file:// URLs. They are allowed by
// default; servers turn them off.
func WithLocalFiles(allow bool) LoaderOption {
	return func(l *Loader) { l.localFiles = allow }
}

func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		http:       &http.Client{Timeout: 2 * time.Minute},
		maxBytes:   50 << 20,
		localFiles: true,
		logger:     logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CheckRef reports whether Load would accept ref, without fetching it.
func (l *Loader) CheckRef(ref string) error {
	_, _, err := l.parseRef(ref)
	return err
}

// parseRef returns the parsed URL, or nil with the path for local files.
func (l *Loader) parseRef(ref string) (*url.URL, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, "", fmt.Errorf("empty document reference")
	}

	u, err := url.Parse(ref)
	local := ""
	switch {
	case err != nil || u.Scheme == "" || len(u.Scheme) == 1: // windows drive letters parse as a scheme
		local = ref
	case u.Scheme == "file":
		local = u.Path
	case u.Scheme == "http", u.Scheme == "https":
		if u.Host == "" {
			return nil, "", fmt.Errorf("document url %q has no host", ref)
		}
		return u, "", nil
	case u.Scheme == "s3":
		if l.objects == nil {
			return nil, "", fmt.Errorf("s3 references are not configured")
		}
		if u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
			return nil, "", fmt.Errorf("invalid s3 reference %q", ref)
		}
		return u, "", nil
	default:
		return nil, "", fmt.Errorf("unsupported document reference scheme %q", u.Scheme)
	}
	if !l.localFiles {
		return nil, "", ErrLocalRef
	}
	return nil, local, nil
}

// Load fetches ref and tags it with a content type.
func (l *Loader) Load(ctx context.Context, ref string) (Document, error) {
	u, local, err := l.parseRef(ref)
	if err != nil {
		return Document{}, err
	}
	switch {
	case u == nil:
		return l.loadFile(local)
	case u.Scheme == "s3":
		return l.loadS3(ctx, u)
	default:
		return l.loadHTTP(ctx, u)
	}
}

func (l *Loader) loadFile(p string) (Document, error) {
	f, err := os.Open(p)
	if err != nil {
		return Document{}, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	data, err := l.readAll(f)
	if err != nil {
		return Document{}, err
	}
	return New(path.Base(strings.ReplaceAll(p, "\\", "/")), data)
}

func (l *Loader) loadHTTP(ctx context.Context, u *url.URL) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch document: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			l.logger.Warn("document.fetch.body_close_error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		return Document{}, fmt.Errorf("fetch document: status %d", resp.StatusCode)
	}
	data, err := l.readAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	l.logger.Info("document.fetch.ok", "url", u.Redacted(), "bytes", len(data))
	return New(path.Base(u.Path), data)
}

func (l *Loader) loadS3(ctx context.Context, u *url.URL) (Document, error) {
	if l.objects == nil {
		return Document{}, fmt.Errorf("s3 references are not configured")
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return Document{}, fmt.Errorf("invalid s3 reference %q", u.String())
	}
	data, err := l.objects.Fetch(ctx, bucket, key)
	if err != nil {
		return Document{}, fmt.Errorf("fetch s3 object: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return Document{}, fmt.Errorf("document exceeds %d bytes", l.maxBytes)
	}
	return New(path.Base(key), data)
}

func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}
