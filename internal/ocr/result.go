// Package ocr holds the provider-neutral OCR result: pages of words with
// top-left-origin vertices, plus the helpers that map provider boxes into
// that space and search words for page attribution.
package ocr

import "strings"

// Vertex is a point in top-left-origin pixel space.
type Vertex struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Polygon is four vertices: top-left, top-right, bottom-right, bottom-left.
type Polygon struct {
	Vertices []Vertex `json:"vertices"`
}

// Word is one recognized token.
type Word struct {
	ID          int     `json:"id"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BoundingBox Polygon `json:"boundingBox"`
}

// Page is one OCR'd page. ID is the 0-based page index.
type Page struct {
	ID     int     `json:"id"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Text   string  `json:"text"`
	Words  []Word  `json:"words"`

	nextID int
}

// PageInfo is the per-page size summary, Page is 1-based.
type PageInfo struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Metadata summarises the document.
type Metadata struct {
	Pages []PageInfo `json:"pages"`
}

// Result is the OCR output for one document.
type Result struct {
	Provider string   `json:"provider,omitempty"`
	Metadata Metadata `json:"metadata"`
	Pages    []Page   `json:"pages"`
	Text     string   `json:"text"`
}

// NewPage starts a page with the given 0-based index and size.
func NewPage(index int, width, height float64) *Page {
	return &Page{ID: index, Width: width, Height: height, Words: []Word{}}
}

// Number is the 1-based page number.
func (p *Page) Number() int { return p.ID + 1 }

// AddWord maps box from the given origin into top-left space and appends a
// word with the next per-page sequence id.
func (p *Page) AddWord(text string, confidence float64, box BoundingBox, origin Origin) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.Words = append(p.Words, Word{
		ID:          p.nextID,
		Text:        text,
		Confidence:  confidence,
		BoundingBox: Polygon{Vertices: ToVertices(box, p.Height, origin)},
	})
	p.nextID++
}

// Build assembles a result from pages, filling page text from words when
// the provider did not supply it, and the document text and metadata.
func Build(provider string, pages []*Page) Result {
	res := Result{Provider: provider, Pages: make([]Page, 0, len(pages))}
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text == "" {
			words := make([]string, len(p.Words))
			for i, w := range p.Words {
				words[i] = w.Text
			}
			p.Text = strings.Join(words, " ")
		}
		texts = append(texts, p.Text)
		res.Pages = append(res.Pages, *p)
		res.Metadata.Pages = append(res.Metadata.Pages, PageInfo{
			Page:   p.Number(),
			Width:  p.Width,
			Height: p.Height,
		})
	}
	res.Text = strings.Join(texts, "\n")
	return res
}

// WordCount returns the total number of words across pages.
func (r Result) WordCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Words)
	}
	return n
}
