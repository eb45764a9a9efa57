// Package ollama runs structured extraction on a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/llm"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const Name = "ollama"

var defaultModels = []string{"llama3.2-vision", "llava"}

type Config struct {
	URL        string // default http://localhost:11434
	Deployment constants.DeploymentEnv
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	provider.Base
	cfg Config
	tr  *provider.Transport
	log *slog.Logger
}

// New returns a client. Ollama needs no key and is only offered locally.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &Client{
		Base: provider.NewBase(Name, "Ollama", false, cfg.Deployment != constants.DeploymentCloud,
			provider.SameModels(defaultModels...)...),
		cfg: cfg,
		tr:  provider.NewTransport(Name, cfg.HTTPClient, cfg.Timeout, logger),
		log: logger,
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.URL, "/") + path
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models pulled into the server, falling back to the
// defaults when it cannot be reached.
func (c *Client) Models(ctx context.Context) []provider.Model {
	raw, err := c.tr.GetJSON(ctx, "models", c.url("/api/tags"), nil)
	if err == nil {
		var tags tagsResponse
		if err = provider.DecodeJSON(Name, "models", raw, &tags); err == nil && len(tags.Models) > 0 {
			ids := make([]string, len(tags.Models))
			for i, m := range tags.Models {
				ids[i] = m.Name
			}
			return provider.SameModels(ids...)
		}
	}
	if err != nil {
		c.log.Warn("ollama.models.fallback", "error", err)
	}
	return c.Base.Models(ctx)
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Format   string         `json:"format"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Infer calls /api/chat with base64 page images and JSON output forced.
func (c *Client) Infer(ctx context.Context, req provider.VisionRequest) (checkup.Record, error) {
	rid := uuid.New().String()
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultModels[0]
	}
	user := chatMessage{Role: "user", Content: llm.BuildUserPrompt(req.Strategy, req.Markdown, len(req.Images))}
	for _, img := range req.Images {
		user.Images = append(user.Images, img.Base64())
	}
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: llm.BuildSystemPrompt()},
			user,
		},
		Format:  "json",
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	}

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", Name,
		"model", model,
		"strategy", req.Strategy,
		"images", len(req.Images),
	)

	raw, err := c.tr.SendJSON(ctx, "infer", c.url("/api/chat"), body, nil)
	if err != nil {
		return checkup.Record{}, err
	}
	var resp chatResponse
	if err := provider.DecodeJSON(Name, "infer", raw, &resp); err != nil {
		return checkup.Record{}, err
	}
	if resp.Error != "" {
		return checkup.Record{}, provider.NewError(Name, "infer", provider.ErrBadResponse, errors.New(resp.Error))
	}

	rec, err := llm.DecodeRecord([]byte(resp.Message.Content), req.Lenient, c.log, "req_id", rid, "provider", Name)
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

var _ provider.VisionProvider = (*Client)(nil)
