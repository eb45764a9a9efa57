// Package document loads submitted documents and renders them to page images.
package document

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/checkup-extractor/constants"
)

// Document is an immutable submitted file.
type Document struct {
	Name        string
	ContentType constants.ContentType
	MIME        string
	Data        []byte
}

// New tags data with a content type, by extension first and sniffing second.
func New(name string, data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, fmt.Errorf("document %q is empty", name)
	}
	ext := constants.NormalizeExt(filepath.Ext(name))
	if ct, ok := constants.ContentTypeForExt(ext); ok {
		return Document{Name: name, ContentType: ct, MIME: constants.MIMETypes[ext], Data: data}, nil
	}

	mt := http.DetectContentType(data)
	switch {
	case mt == "application/pdf":
		return Document{Name: name, ContentType: constants.ContentTypePDF, MIME: mt, Data: data}, nil
	case strings.HasPrefix(mt, "image/"):
		return Document{Name: name, ContentType: constants.ContentTypeImage, MIME: mt, Data: data}, nil
	}
	return Document{}, fmt.Errorf("unsupported document type %q (%s)", name, mt)
}

// Ext returns the normalized file extension of the document name.
func (d Document) Ext() string {
	return constants.NormalizeExt(filepath.Ext(d.Name))
}

// Image is one rendered page.
type Image struct {
	Page   int // 1-based
	MIME   string
	Data   []byte
	Width  int
	Height int
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + i.Base64()
}

// FileName is a synthetic name used for multipart uploads.
func (i Image) FileName() string {
	ext := "png"
	if i.MIME == "image/jpeg" {
		ext = "jpg"
	}
	return fmt.Sprintf("page-%d.%s", i.Page, ext)
}

// AsDocument wraps a page image for providers that take documents.
func (i Image) AsDocument() Document {
	return Document{Name: i.FileName(), ContentType: constants.ContentTypeImage, MIME: i.MIME, Data: i.Data}
}
