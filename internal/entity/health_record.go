package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
)

// HealthRecord represents a parsed health checkup for data transfer between layers.
type HealthRecord struct {
	ID             uuid.UUID              `json:"id"`
	Status         constants.RecordStatus `json:"status"`
	Source         string                 `json:"source"`
	VisionProvider string                 `json:"vision_provider"`
	VisionModel    string                 `json:"vision_model,omitempty"`
	ParserProvider string                 `json:"parser_provider"`
	ParserModel    string                 `json:"parser_model,omitempty"`
	Data           *checkup.Record        `json:"data,omitempty"`
	Metadata       *RecordMetadata        `json:"metadata,omitempty"`
	ErrorMessage   *string                `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// RecordMetadata is stored next to the merged record.
type RecordMetadata struct {
	Pages checkup.PageMap `json:"pages"`
	OCR   ocr.Result      `json:"ocr"`
}

// NewHealthRecord carries the fields known when a parse starts.
type NewHealthRecord struct {
	Source         string
	VisionProvider string
	VisionModel    string
	ParserProvider string
	ParserModel    string
}
