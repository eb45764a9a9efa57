// Package openai runs structured extraction on OpenAI chat models.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/llm"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const Name = "openai"

type Config struct {
	EnvAPIKey  string
	BaseURL    string // empty = api.openai.com
	Deployment constants.DeploymentEnv
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	provider.Base
	cfg Config
	log *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	models := provider.SameModels("gpt-4o-mini", "gpt-4o", "o1", "o1-mini")
	if cfg.Deployment == constants.DeploymentCloud {
		models = provider.SameModels("gpt-4o")
	}
	return &Client{
		Base: provider.NewBase(Name, "OpenAI", provider.KeyRequired(cfg.Deployment, cfg.EnvAPIKey), true, models...),
		cfg:  cfg,
		log:  logger,
	}
}

// newAPI builds an SDK client for one call; the key can differ per request.
// Retries are owned by the strategy executor, so the SDK's are disabled.
func (c *Client) newAPI(key string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(c.cfg.Timeout),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	if c.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.cfg.HTTPClient))
	}
	return openai.NewClient(opts...)
}

// Infer sends the page images as data URLs plus the markdown and asks for a
// JSON object reply.
func (c *Client) Infer(ctx context.Context, req provider.VisionRequest) (checkup.Record, error) {
	rid := uuid.New().String()
	start := time.Now()

	key := provider.ResolveAPIKey(c.cfg.EnvAPIKey, req.APIKey)
	if key == "" {
		return checkup.Record{}, provider.MissingKey(Name, "infer")
	}
	model := req.Model
	if model == "" {
		model = "gpt-4o"
	}

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", Name,
		"model", model,
		"strategy", req.Strategy,
		"images", len(req.Images),
		"text_len", len(req.Markdown),
	)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(llm.BuildUserPrompt(req.Strategy, req.Markdown, len(req.Images))),
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    img.DataURL(),
			Detail: "high",
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(llm.BuildSystemPrompt()),
			openai.UserMessage(parts),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	// reasoning models reject a temperature
	if !strings.HasPrefix(model, "o1") {
		params.Temperature = openai.Float(0)
	}

	api := c.newAPI(key)
	resp, err := api.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return checkup.Record{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return checkup.Record{}, provider.NewError(Name, "infer", provider.ErrBadResponse, errors.New("no choices in openai response"))
	}

	rec, err := llm.DecodeRecord([]byte(resp.Choices[0].Message.Content), req.Lenient, c.log, "req_id", rid, "provider", Name)
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
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return provider.StatusError(Name, "infer", apiErr.StatusCode, []byte(fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)))
	}
	return provider.Classify(Name, "infer", err)
}

var _ provider.VisionProvider = (*Client)(nil)
