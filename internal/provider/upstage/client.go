// Package upstage wraps the Upstage document-ai OCR and document-parse APIs.
package upstage

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const (
	Name = "upstage"

	ocrModel   = "ocr-2.2.1"
	parseModel = "document-parse"
)

type Config struct {
	BaseURL    string // default https://api.upstage.ai/v1
	EnvAPIKey  string
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

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.upstage.ai/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		Base: provider.NewBase(Name, "Upstage",
			provider.KeyRequired(cfg.Deployment, cfg.EnvAPIKey), true,
			provider.Model{ID: parseModel, Name: "Document Parse"},
		),
		cfg: cfg,
		tr:  provider.NewTransport(Name, cfg.HTTPClient, cfg.Timeout, logger),
		log: logger,
	}
}

type ocrResponse struct {
	Pages []struct {
		ID     int     `json:"id"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Text   string  `json:"text"`
		Words  []struct {
			Text        string  `json:"text"`
			Confidence  float64 `json:"confidence"`
			BoundingBox struct {
				Vertices []ocr.Vertex `json:"vertices"`
			} `json:"boundingBox"`
		} `json:"words"`
	} `json:"pages"`
}

// OCR sends the document to the OCR endpoint. Upstage vertices are already
// top-left pixel coordinates.
func (c *Client) OCR(ctx context.Context, doc document.Document, opts provider.Options) (ocr.Result, error) {
	start := time.Now()
	key := provider.ResolveAPIKey(c.cfg.EnvAPIKey, opts.APIKey)
	if key == "" {
		return ocr.Result{}, provider.MissingKey(Name, "ocr")
	}

	var form provider.Form
	form.Files = append(form.Files, provider.FormFile{Field: "document", FileName: "document", MIME: doc.MIME, Data: doc.Data})
	form.Add("schema", "oac")
	form.Add("model", ocrModel)

	raw, err := c.tr.PostMultipart(ctx, "ocr", c.endpoint("/document-ai/ocr"), form, auth(key))
	if err != nil {
		return ocr.Result{}, err
	}
	var resp ocrResponse
	if err := provider.DecodeJSON(Name, "ocr", raw, &resp); err != nil {
		return ocr.Result{}, err
	}

	pages := make([]*ocr.Page, 0, len(resp.Pages))
	for i, p := range resp.Pages {
		page := ocr.NewPage(i, p.Width, p.Height)
		page.Text = p.Text
		for _, w := range p.Words {
			page.AddWord(w.Text, w.Confidence, ocr.BoxFromVertices(w.BoundingBox.Vertices), ocr.OriginTopLeft)
		}
		pages = append(pages, page)
	}
	res := ocr.Build(Name, pages)

	c.log.Info("upstage.ocr.ok",
		"name", doc.Name,
		"pages", len(res.Pages),
		"words", res.WordCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

type parseResponse struct {
	Content struct {
		Markdown string `json:"markdown"`
	} `json:"content"`
	Pages    []pageContent `json:"pages"`
	Document struct {
		Pages []pageContent `json:"pages"`
	} `json:"document"`
}

type pageContent struct {
	Content string `json:"content"`
}

// Parse returns the document markdown.
func (c *Client) Parse(ctx context.Context, doc document.Document, opts provider.Options) (string, error) {
	start := time.Now()
	key := provider.ResolveAPIKey(c.cfg.EnvAPIKey, opts.APIKey)
	if key == "" {
		return "", provider.MissingKey(Name, "parse")
	}
	model := opts.Model
	if model == "" {
		model = parseModel
	}

	var form provider.Form
	form.Files = append(form.Files, provider.FormFile{Field: "document", FileName: "document", MIME: doc.MIME, Data: doc.Data})
	form.Add("ocr", "force")
	form.Add("output_formats", `["markdown"]`)
	form.Add("coordinates", "true")
	form.Add("model", model)

	raw, err := c.tr.PostMultipart(ctx, "parse", c.endpoint("/document-ai/document-parse"), form, auth(key))
	if err != nil {
		return "", err
	}
	var resp parseResponse
	if err := provider.DecodeJSON(Name, "parse", raw, &resp); err != nil {
		return "", err
	}

	md := joinPages(resp.Document.Pages)
	if md == "" {
		md = joinPages(resp.Pages)
	}
	if md == "" {
		md = resp.Content.Markdown
	}

	c.log.Info("upstage.parse.ok",
		"name", doc.Name,
		"markdown_len", len(md),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return md, nil
}

func joinPages(pages []pageContent) string {
	if len(pages) == 0 {
		return ""
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n")
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func auth(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

var (
	_ provider.OCRProvider      = (*Client)(nil)
	_ provider.DocumentProvider = (*Client)(nil)
)
