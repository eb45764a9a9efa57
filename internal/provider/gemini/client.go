// Package gemini runs structured extraction on Google Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/llm"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const Name = "gemini"

type Config struct {
	EnvAPIKey  string
	Endpoint   string // optional API endpoint override
	Deployment constants.DeploymentEnv
	Timeout    time.Duration
}

// GenerateFunc performs one generateContent call and returns the reply text.
type GenerateFunc func(ctx context.Context, key, model, system string, parts []genai.Part) (string, error)

type Client struct {
	provider.Base
	cfg      Config
	generate GenerateFunc
	log      *slog.Logger
}

type Option func(*Client)

// WithGenerateFunc replaces the SDK call (tests).
func WithGenerateFunc(f GenerateFunc) Option {
	return func(c *Client) { c.generate = f }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	c := &Client{
		Base: provider.NewBase(Name, "Google Gemini", provider.KeyRequired(cfg.Deployment, cfg.EnvAPIKey), true,
			provider.SameModels("gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash")...),
		cfg: cfg,
		log: logger,
	}
	c.generate = c.sdkGenerate
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) sdkGenerate(ctx context.Context, key, model, system string, parts []genai.Part) (string, error) {
	opts := []option.ClientOption{option.WithAPIKey(key)}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := cl.Close(); err != nil {
			c.log.Warn("gemini.client_close_error", "error", err)
		}
	}()

	m := cl.GenerativeModel(model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0)

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates in gemini response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// Infer sends the prompt followed by one image part per page.
func (c *Client) Infer(ctx context.Context, req provider.VisionRequest) (checkup.Record, error) {
	rid := uuid.New().String()
	start := time.Now()

	key := provider.ResolveAPIKey(c.cfg.EnvAPIKey, req.APIKey)
	if key == "" {
		return checkup.Record{}, provider.MissingKey(Name, "infer")
	}
	model := req.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", Name,
		"model", model,
		"strategy", req.Strategy,
		"images", len(req.Images),
		"text_len", len(req.Markdown),
	)

	parts := []genai.Part{genai.Text(llm.BuildUserPrompt(req.Strategy, req.Markdown, len(req.Images)))}
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData(strings.TrimPrefix(img.MIME, "image/"), img.Data))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.generate(ctx, key, model, llm.BuildSystemPrompt(), parts)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "provider", Name, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return checkup.Record{}, classify(err)
	}

	rec, err := llm.DecodeRecord([]byte(text), req.Lenient, c.log, "req_id", rid, "provider", Name)
	if err != nil {
		return checkup.Record{}, err
	}
	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"provider", Name,
		"strategy", req.Strategy,
		"fields", len(rec.NonNullKeys()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return provider.StatusError(Name, "infer", gerr.Code, []byte(gerr.Message))
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "api key not valid") || strings.Contains(msg, "permission denied") {
		return provider.NewError(Name, "infer", provider.ErrAuth, err)
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return provider.NewError(Name, "infer", provider.ErrBadResponse, fmt.Errorf("response blocked: %w", err))
	}
	return provider.Classify(Name, "infer", err)
}

var _ provider.VisionProvider = (*Client)(nil)
