package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Prepare decodes a page image, scales it down so neither side exceeds
// maxDim (0 = no limit) and re-encodes to PNG when it was scaled or is not
// a format every provider accepts.
func Prepare(page int, data []byte, maxDim int) (Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image config: %w", err)
	}

	needsScale := maxDim > 0 && (cfg.Width > maxDim || cfg.Height > maxDim)
	passthrough := format == "png" || format == "jpeg"
	if !needsScale && passthrough {
		return Image{Page: page, MIME: "image/" + format, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}

	dst := image.Image(src)
	w, h := cfg.Width, cfg.Height
	if needsScale {
		w, h = scaledSize(cfg.Width, cfg.Height, maxDim)
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(rgba, rgba.Bounds(), src, src.Bounds(), draw.Over, nil)
		dst = rgba
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return Image{}, fmt.Errorf("encode png: %w", err)
	}
	return Image{Page: page, MIME: "image/png", Data: buf.Bytes(), Width: w, Height: h}, nil
}

func scaledSize(w, h, maxDim int) (int, int) {
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
