package constants

import "strings"

// ContentType tags a submitted document.
type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypePDF   ContentType = "pdf"
)

// AllowedExtensions maps accepted upload extensions to their content type.
var AllowedExtensions = map[string]ContentType{
	"pdf":  ContentTypePDF,
	"jpg":  ContentTypeImage,
	"jpeg": ContentTypeImage,
	"png":  ContentTypeImage,
	"webp": ContentTypeImage,
	"heic": ContentTypeImage,
	"heif": ContentTypeImage,
}

// MIMETypes maps extensions to the MIME type sent to providers.
var MIMETypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForExt returns the content type for an extension, if accepted.
func ContentTypeForExt(ext string) (ContentType, bool) {
	ct, ok := AllowedExtensions[NormalizeExt(ext)]
	return ct, ok
}

// IsHEICExt reports whether ext needs conversion before decoding.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}
