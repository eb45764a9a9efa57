// Package docling talks to a docling-serve instance.
package docling

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const (
	Name = "docling"

	// docling does not report confidences.
	wordConfidence = 0.98
)

type Config struct {
	URL        string // default http://docling-serve:5001
	Deployment constants.DeploymentEnv
	Timeout    time.Duration
	OCRLang    string
	HTTPClient *http.Client
}

type Client struct {
	provider.Base
	cfg Config
	tr  *provider.Transport
	log *slog.Logger
}

// New returns a client. Docling is a self-hosted sidecar, so it is only
// enabled for local deployments.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = "http://docling-serve:5001"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.OCRLang == "" {
		cfg.OCRLang = "en"
	}
	return &Client{
		Base: provider.NewBase(Name, "Docling", false, cfg.Deployment == constants.DeploymentLocal,
			provider.Model{ID: "document-parse", Name: "Document Parse"},
		),
		cfg: cfg,
		tr:  provider.NewTransport(Name, cfg.HTTPClient, cfg.Timeout, logger),
		log: logger,
	}
}

func (c *Client) form(doc document.Document, forceOCR bool, toFormat string) provider.Form {
	force := strconv.FormatBool(forceOCR)
	var f provider.Form
	f.Add("ocr_engine", "easyocr")
	f.Add("pdf_backend", "dlparse_v2")
	f.Add("from_formats", "pdf")
	f.Add("from_formats", "docx")
	f.Add("from_formats", "image")
	f.Add("force_ocr", force)
	f.Add("image_export_mode", "placeholder")
	f.Add("ocr_lang", c.cfg.OCRLang)
	f.Add("table_mode", "fast")
	f.Add("abort_on_error", "false")
	f.Add("to_formats", toFormat)
	f.Add("return_as_file", "false")
	f.Add("do_ocr", force)
	name := doc.Name
	if name == "" {
		name = "document.pdf"
	}
	f.Files = append(f.Files, provider.FormFile{Field: "files", FileName: name, MIME: doc.MIME, Data: doc.Data})
	return f
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.URL, "/") + "/v1alpha/convert/file"
}

type convertResponse struct {
	Document struct {
		MDContent   string       `json:"md_content"`
		JSONContent *jsonContent `json:"json_content"`
	} `json:"document"`
}

type jsonContent struct {
	Pages map[string]struct {
		Size struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"size"`
	} `json:"pages"`
	Texts []struct {
		Text string `json:"text"`
		Prov []struct {
			PageNo int `json:"page_no"`
			BBox   struct {
				ocr.BoundingBox
				CoordOrigin string `json:"coord_origin"`
			} `json:"bbox"`
		} `json:"prov"`
	} `json:"texts"`
}

// OCR converts with forced OCR and maps text item boxes into top-left space.
func (c *Client) OCR(ctx context.Context, doc document.Document, _ provider.Options) (ocr.Result, error) {
	start := time.Now()
	raw, err := c.tr.PostMultipart(ctx, "ocr", c.endpoint(), c.form(doc, true, "json"), nil)
	if err != nil {
		return ocr.Result{}, err
	}
	var resp convertResponse
	if err := provider.DecodeJSON(Name, "ocr", raw, &resp); err != nil {
		return ocr.Result{}, err
	}
	if resp.Document.JSONContent == nil {
		return ocr.Result{}, provider.NewError(Name, "ocr", provider.ErrBadResponse, fmt.Errorf("missing json_content"))
	}

	res, err := convert(resp.Document.JSONContent)
	if err != nil {
		return ocr.Result{}, provider.NewError(Name, "ocr", provider.ErrBadResponse, err)
	}
	c.log.Info("docling.ocr.ok",
		"name", doc.Name,
		"pages", len(res.Pages),
		"words", res.WordCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// convert builds pages in page-number order. Each text item becomes one
// word per provenance entry on that page.
func convert(jc *jsonContent) (ocr.Result, error) {
	nums := make([]int, 0, len(jc.Pages))
	for k := range jc.Pages {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			return ocr.Result{}, fmt.Errorf("invalid page key %q", k)
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)

	pages := make([]*ocr.Page, 0, len(nums))
	for _, n := range nums {
		size := jc.Pages[strconv.Itoa(n)].Size
		page := ocr.NewPage(n-1, size.Width, size.Height)
		for _, t := range jc.Texts {
			for _, p := range t.Prov {
				if p.PageNo != n {
					continue
				}
				origin := ocr.OriginBottomLeft
				if strings.EqualFold(p.BBox.CoordOrigin, "TOPLEFT") {
					origin = ocr.OriginTopLeft
				}
				page.AddWord(t.Text, wordConfidence, p.BBox.BoundingBox, origin)
			}
		}
		pages = append(pages, page)
	}
	return ocr.Build(Name, pages), nil
}

// Parse converts to markdown without forcing OCR, which is much faster for
// PDFs that carry a text layer.
func (c *Client) Parse(ctx context.Context, doc document.Document, _ provider.Options) (string, error) {
	start := time.Now()
	raw, err := c.tr.PostMultipart(ctx, "parse", c.endpoint(), c.form(doc, false, "md"), nil)
	if err != nil {
		return "", err
	}
	var resp convertResponse
	if err := provider.DecodeJSON(Name, "parse", raw, &resp); err != nil {
		return "", err
	}
	c.log.Info("docling.parse.ok",
		"name", doc.Name,
		"markdown_len", len(resp.Document.MDContent),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Document.MDContent, nil
}

var (
	_ provider.OCRProvider      = (*Client)(nil)
	_ provider.DocumentProvider = (*Client)(nil)
)
