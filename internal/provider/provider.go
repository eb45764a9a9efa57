// Package provider defines the capability contracts that OCR engines,
// document parsers and vision models implement, plus the shared error
// taxonomy and HTTP transport they use.
package provider

import (
	"context"
	"slices"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/ocr"
)

// Provider is what every backend reports about itself.
type Provider interface {
	Name() string
	DisplayName() string
	APIKeyRequired() bool
	Enabled() bool
	Models(ctx context.Context) []Model
}

// Model is one selectable model id.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Options are the per-call selections for OCR and document parsing.
type Options struct {
	Model  string
	APIKey string
}

// OCRProvider returns words with top-left vertices per page.
type OCRProvider interface {
	Provider
	OCR(ctx context.Context, doc document.Document, opts Options) (ocr.Result, error)
}

// DocumentProvider returns the markdown content of a document.
type DocumentProvider interface {
	Provider
	Parse(ctx context.Context, doc document.Document, opts Options) (string, error)
}

// VisionRequest is one structured extraction call. Images or Markdown may be
// empty depending on the strategy.
type VisionRequest struct {
	Model    string
	APIKey   string
	Strategy constants.Strategy
	Images   []document.Image
	Markdown string
	Lenient  bool
}

// VisionProvider extracts a validated health checkup record.
type VisionProvider interface {
	Provider
	Infer(ctx context.Context, req VisionRequest) (checkup.Record, error)
}

// Base carries the descriptive half of a Provider for embedding.
type Base struct {
	name        string
	displayName string
	keyRequired bool
	enabled     bool
	models      []Model
}

func NewBase(name, displayName string, keyRequired, enabled bool, models ...Model) Base {
	return Base{name: name, displayName: displayName, keyRequired: keyRequired, enabled: enabled, models: models}
}

func (b Base) Name() string                   { return b.name }
func (b Base) DisplayName() string            { return b.displayName }
func (b Base) APIKeyRequired() bool           { return b.keyRequired }
func (b Base) Enabled() bool                  { return b.enabled }
func (b Base) Models(context.Context) []Model { return slices.Clone(b.models) }

// SameModels is a helper for providers whose model id doubles as its name.
func SameModels(ids ...string) []Model {
	out := make([]Model, len(ids))
	for i, id := range ids {
		out[i] = Model{ID: id, Name: id}
	}
	return out
}

// ResolveAPIKey picks the key to send: a key configured in the environment
// always wins over one supplied with the request.
func ResolveAPIKey(envKey, userKey string) string {
	if envKey != "" {
		return envKey
	}
	return userKey
}

// KeyRequired reports whether callers must supply their own key: only
// local deployments without an environment key do.
func KeyRequired(env constants.DeploymentEnv, envKey string) bool {
	return env == constants.DeploymentLocal && envKey == ""
}
