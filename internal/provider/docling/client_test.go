package docling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const jsonPayload = `{"document": {"json_content": {
  "pages": {"2": {"size": {"width": 600, "height": 800}}, "1": {"size": {"width": 600, "height": 800}}},
  "texts": [
    {"text": "Glucose", "prov": [{"page_no": 1, "bbox": {"l": 10, "t": 790, "r": 80, "b": 770, "coord_origin": "BOTTOMLEFT"}}]},
    {"text": "120", "prov": [{"page_no": 2, "bbox": {"l": 20.4, "t": 700.5, "r": 60, "b": 680}}]},
    {"text": "mmHg", "prov": [{"page_no": 2, "bbox": {"l": 70, "t": 100, "r": 110, "b": 120, "coord_origin": "TOPLEFT"}}]}
  ]
}}}`

func newServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1alpha/convert/file" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		switch r.FormValue("to_formats") {
		case "json":
			if r.FormValue("force_ocr") != "true" {
				t.Error("ocr request should force OCR")
			}
			_, _ = w.Write([]byte(jsonPayload))
		case "md":
			if r.FormValue("do_ocr") != "false" {
				t.Error("parse request should not OCR")
			}
			_, _ = w.Write([]byte(`{"document": {"md_content": "## Result\n| Glucose | 95 |"}}`))
		}
	}))
}

func doc() document.Document {
	return document.Document{Name: "scan.pdf", ContentType: constants.ContentTypePDF, MIME: "application/pdf", Data: []byte("%PDF")}
}

func TestOCRConvertsCoordinates(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	c := New(Config{URL: srv.URL, Deployment: constants.DeploymentLocal}, nil)
	res, err := c.OCR(context.Background(), doc(), provider.Options{})
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if len(res.Pages) != 2 || res.Pages[0].ID != 0 || res.Pages[1].ID != 1 {
		t.Fatalf("OCR() pages = %+v", res.Pages)
	}

	g := res.Pages[0].Words[0]
	want := []ocr.Vertex{{X: 10, Y: 10}, {X: 80, Y: 10}, {X: 80, Y: 30}, {X: 10, Y: 30}}
	for i, v := range g.BoundingBox.Vertices {
		if v != want[i] {
			t.Errorf("Glucose vertex %d = %+v, want %+v", i, v, want[i])
		}
	}
	if g.Confidence != 0.98 {
		t.Errorf("Confidence = %v, want 0.98", g.Confidence)
	}

	p2 := res.Pages[1]
	if len(p2.Words) != 2 || p2.Words[0].ID != 0 || p2.Words[1].ID != 1 {
		t.Fatalf("page 2 words = %+v", p2.Words)
	}
	// 800 - 700.5 = 99.5 rounds half up
	if v := p2.Words[0].BoundingBox.Vertices[0]; v.X != 20 || v.Y != 100 {
		t.Errorf("120 top-left = %+v, want {20 100}", v)
	}
	if v := p2.Words[1].BoundingBox.Vertices[0]; v.Y != 100 {
		t.Errorf("top-left origin box should be unchanged, got %+v", v)
	}
	if p2.Text != "120 mmHg" {
		t.Errorf("page text = %q", p2.Text)
	}
}

func TestParse(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	c := New(Config{URL: srv.URL}, nil)
	md, err := c.Parse(context.Background(), doc(), provider.Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if md != "## Result\n| Glucose | 95 |" {
		t.Errorf("Parse() = %q", md)
	}
}

func TestEnabledOnlyLocal(t *testing.T) {
	if New(Config{Deployment: constants.DeploymentCloud}, nil).Enabled() {
		t.Error("Enabled() = true in cloud")
	}
	c := New(Config{Deployment: constants.DeploymentLocal}, nil)
	if !c.Enabled() || c.APIKeyRequired() {
		t.Errorf("local client = enabled %v key %v", c.Enabled(), c.APIKeyRequired())
	}
	if c.cfg.Timeout != 5*time.Minute {
		t.Errorf("default timeout = %v", c.cfg.Timeout)
	}
}
