package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/checkup-extractor/internal/document"
)

// cliEngine runs `tesseract <img> stdout -l <lang> tsv`.
type cliEngine struct {
	cfg    Config
	runner document.Runner
	log    *slog.Logger
}

func (e *cliEngine) recognize(ctx context.Context, img document.Image) (pageResult, error) {
	tmpDir, err := os.MkdirTemp("", "ce-tess-*")
	if err != nil {
		return pageResult{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, img.FileName())
	if err := os.WriteFile(in, img.Data, 0o600); err != nil {
		return pageResult{}, err
	}

	args := []string{in, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, e.log, args...)
	if err != nil {
		if ctx.Err() != nil {
			return pageResult{}, ctx.Err()
		}
		return pageResult{}, fmt.Errorf("tesseract TSV: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return parseTSV(string(out)), nil
}

// parseTSV reads word rows (level 5) and rebuilds line text from the
// block/paragraph/line numbers.
//
// Columns: level page_num block_num par_num line_num word_num left top width height conf text
func parseTSV(out string) pageResult {
	var (
		res      pageResult
		lines    []string
		cur      []string
		lastLine string
	)
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if text == "" || err != nil || conf < 0 {
			continue
		}
		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])

		key := cols[2] + "/" + cols[3] + "/" + cols[4]
		if key != lastLine {
			flush()
			lastLine = key
		}
		cur = append(cur, text)
		res.Words = append(res.Words, word{
			Text:       text,
			Confidence: conf / 100,
			Box:        image.Rect(left, top, left+width, top+height),
		})
	}
	flush()
	res.Text = strings.Join(lines, "\n")
	return res
}
