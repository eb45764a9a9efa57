package llm

import (
	"log/slog"

	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
)

// DecodeRecord validates a model reply strictly first and, when lenient is
// set, retries once after sanitizing. Failures are *checkup.ValidationError.
func DecodeRecord(raw []byte, lenient bool, logger *slog.Logger, attrs ...any) (checkup.Record, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rec, changed, err := checkup.Decode(raw, lenient)
	if err != nil {
		logger.Error("llm.extract.schema_validation_failed",
			append(attrs, "error", err, "content_len", len(raw))...,
		)
		return checkup.Record{}, err
	}
	if len(changed) > 0 {
		logger.Warn("llm.extract.lenient_sanitize_applied", append(attrs, "changed", changed)...)
	}
	return rec, nil
}
