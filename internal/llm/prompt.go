// Package llm builds the structured-extraction prompts shared by the vision
// providers and decodes their replies into checkup records.
package llm

import (
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
)

// maxMarkdownChars bounds the document text sent with a request.
const maxMarkdownChars = 24000

// BuildSystemPrompt lists the catalogue and the output rules. The schema
// itself is appended so providers without native structured output still
// see it.
func BuildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a medical health checkup report parser. Return ONLY a JSON object that matches the provided JSON Schema.\n")
	b.WriteString("Copy values exactly as printed on the report; do not convert units, round numbers or translate.\n")
	b.WriteString("Each test_result entry is {\"value\": string|null, \"unit\": string|null}. Use null for anything not present. Never invent values.\n")
	b.WriteString("Dates are YYYY-MM-DD when the report gives a full date.\n\n")

	b.WriteString("Metadata fields:\n")
	for _, f := range checkup.MetadataFields {
		writeField(&b, f)
	}
	b.WriteString("\ntest_result fields:\n")
	for _, f := range checkup.TestFields {
		writeField(&b, f)
	}

	b.WriteString("\nJSON Schema:\n")
	b.WriteString(schemaJSON())
	return b.String()
}

func writeField(b *strings.Builder, f checkup.Field) {
	b.WriteString("- ")
	b.WriteString(f.Key)
	b.WriteString(": ")
	b.WriteString(f.Label)
	if f.Unit != "" {
		b.WriteString(" (usually ")
		b.WriteString(f.Unit)
		b.WriteString(")")
	}
	b.WriteByte('\n')
}

// BuildUserPrompt describes what the request carries for a strategy. The
// markdown is only included when the strategy sends text.
func BuildUserPrompt(strategy constants.Strategy, markdown string, imageCount int) string {
	var b strings.Builder
	switch {
	case imageCount > 0 && strategy != constants.StrategyText:
		b.WriteString("The attached ")
		if imageCount == 1 {
			b.WriteString("image is the report page")
		} else {
			b.WriteString("images are the report pages in order")
		}
		b.WriteString(".\n")
	}

	if strategy != constants.StrategyImage {
		md := strings.TrimSpace(markdown)
		if md != "" {
			b.WriteString("\nDocument text (markdown):\n")
			if len(md) > maxMarkdownChars {
				b.WriteString(md[:maxMarkdownChars])
				b.WriteString("\n...(truncated)")
			} else {
				b.WriteString(md)
			}
			b.WriteByte('\n')
		}
	}
	b.WriteString("\nExtract the health checkup record. Return ONLY JSON.")
	return b.String()
}

func schemaJSON() string {
	bs, _ := json.MarshalIndent(checkup.BuildHealthCheckupJSONSchema(), "", "  ")
	return string(bs)
}
