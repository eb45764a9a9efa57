package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnsupported     = errors.New("provider does not support operation")
	ErrDisabled        = errors.New("provider is not enabled in this deployment")
)

// Capabilities
const (
	CapOCR      = "ocr"
	CapDocument = "document"
	CapVision   = "vision"
)

// Descriptor is the listing form of a provider.
type Descriptor struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"displayName"`
	APIKeyRequired bool     `json:"apiKeyRequired"`
	Enabled        bool     `json:"enabled"`
	Capabilities   []string `json:"capabilities"`
	Models         []Model  `json:"models"`
}

// Registry looks providers up by name. It is built once at startup and only
// read afterwards.
type Registry struct {
	byName map[string]Provider
	order  []string
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	if _, ok := r.byName[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.byName[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) lookup(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, name)
	}
	if !p.Enabled() {
		return nil, fmt.Errorf("%s: %w", name, ErrDisabled)
	}
	return p, nil
}

// OCR returns the named provider if it is enabled and can OCR.
func (r *Registry) OCR(name string) (OCRProvider, error) {
	p, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	op, ok := p.(OCRProvider)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", name, CapOCR, ErrUnsupported)
	}
	return op, nil
}

// Document returns the named provider if it is enabled and can parse documents.
func (r *Registry) Document(name string) (DocumentProvider, error) {
	p, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	dp, ok := p.(DocumentProvider)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", name, CapDocument, ErrUnsupported)
	}
	return dp, nil
}

// Vision returns the named provider if it is enabled and can infer records.
func (r *Registry) Vision(name string) (VisionProvider, error) {
	p, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	vp, ok := p.(VisionProvider)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", name, CapVision, ErrUnsupported)
	}
	return vp, nil
}

// List describes every registered provider in registration order.
func (r *Registry) List(ctx context.Context) []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		p := r.byName[name]
		out = append(out, Descriptor{
			Name:           p.Name(),
			DisplayName:    p.DisplayName(),
			APIKeyRequired: p.APIKeyRequired(),
			Enabled:        p.Enabled(),
			Capabilities:   Capabilities(p),
			Models:         p.Models(ctx),
		})
	}
	return out
}

// Capabilities lists what p implements.
func Capabilities(p Provider) []string {
	var caps []string
	if _, ok := p.(OCRProvider); ok {
		caps = append(caps, CapOCR)
	}
	if _, ok := p.(DocumentProvider); ok {
		caps = append(caps, CapDocument)
	}
	if _, ok := p.(VisionProvider); ok {
		caps = append(caps, CapVision)
	}
	return caps
}
