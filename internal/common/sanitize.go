package common

import (
	"log/slog"
	"strings"
)

// clientSafePatterns maps error patterns to client-safe messages.
// Ordered: the first match wins.
var clientSafePatterns = []struct {
	pattern string
	message string
}{
	{"schema validation", "extracted record failed schema validation"},
	{"auth", "authentication failed with provider"},
	{"invalid api", "authentication failed with provider"},
	{"unauthorized", "authentication failed with provider"},
	{"forbidden", "access denied by provider"},
	{"timeout", "provider request timed out"},
	{"deadline exceeded", "provider request timed out"},
	{"rate limit", "rate limit exceeded"},
	{"quota", "quota exceeded"},
	{"batch cancelled", "document parsing was cancelled"},
	{"rasterize", "document could not be rendered"},
	{"unsupported", "unsupported document type"},
	{"not found", "resource not found"},
}

// SanitizeForClient converts internal errors to messages that are safe to
// persist and show. The full error is logged server-side.
func SanitizeForClient(err error) string {
	if err == nil {
		return ""
	}

	errLower := strings.ToLower(err.Error())
	for _, p := range clientSafePatterns {
		if strings.Contains(errLower, p.pattern) {
			slog.Debug("sanitizing error for client",
				"original", err.Error(),
				"sanitized", p.message,
			)
			return p.message
		}
	}

	slog.Error("pipeline error (sanitized for client)", "error", err)
	return "document parsing failed"
}
