package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

// Runner runs an external tool. pdftoppm, the HEIC converters and the
// tesseract CLI all go through it, so tests can script their output.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec. The zero value is ready to use.
type ExecRunner struct {
	// StderrLogLimit caps the stderr tail logged on failure. 0 means 4 KiB.
	StderrLogLimit int
}

func (r ExecRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tool := filepath.Base(name)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	attrs := []any{"cmd", tool, "argc", len(args), "elapsed_ms", time.Since(start).Milliseconds()}

	if err != nil {
		// a killed child reports "signal: killed"; surface the context cause instead
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		err = fmt.Errorf("%s: %w", tool, err)
		logger.Warn("exec.failed", append(attrs, "err", err, "stderr", tail(stderr.Bytes(), r.limit()))...)
		return stdout.Bytes(), stderr.Bytes(), err
	}
	logger.Debug("exec.ok", append(attrs, "stdout_bytes", stdout.Len())...)
	return stdout.Bytes(), stderr.Bytes(), nil
}

func (r ExecRunner) limit() int {
	if r.StderrLogLimit > 0 {
		return r.StderrLogLimit
	}
	return 4 << 10
}

// tail keeps the last n bytes; tools print the actual failure last.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}
