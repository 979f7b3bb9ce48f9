// Package render maps question render types to renderers that build view
// descriptors for the wizard and validate submitted answer values.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// View is the render descriptor sent to the client with a question.
type View struct {
	Kind   string          `json:"kind"`
	Label  string          `json:"label,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// KindPlaceholder marks a display-only view for types with no renderer.
const KindPlaceholder = "placeholder"

// Renderer renders one question type.
type Renderer interface {
	// Type is the internal render type this renderer handles.
	Type() string
	// Render builds the view for config with the current value, which may be nil.
	Render(config, value json.RawMessage) (View, error)
	// Validate checks a submitted value against config.
	Validate(config, value json.RawMessage) error
}

// Registry is a set of renderers keyed by type.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry returns a registry holding renderers.
func NewRegistry(renderers ...Renderer) *Registry {
	r := &Registry{renderers: make(map[string]Renderer, len(renderers))}
	for _, rr := range renderers {
		r.renderers[rr.Type()] = rr
	}
	return r
}

// Default returns a registry with every built-in renderer.
func Default() *Registry {
	return NewRegistry(
		ScaleSlider{},
		RadioGroup{},
		CheckboxGroup{},
		TextInput{},
		TextArea{},
		YesNo{},
		RankOrder{},
	)
}

// Register adds or replaces the renderer for its type.
func (r *Registry) Register(rr Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[rr.Type()] = rr
}

// Lookup returns the renderer for typ. Unknown types get a placeholder renderer.
func (r *Registry) Lookup(typ string) Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rr, ok := r.renderers[typ]; ok {
		return rr
	}
	return Placeholder{Name: typ}
}

// Known reports whether typ has a registered renderer.
func (r *Registry) Known(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.renderers[typ]
	return ok
}

// Types lists registered types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.renderers))
	for t := range r.renderers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Render renders typ, falling back to a placeholder view if the renderer fails.
func (r *Registry) Render(typ string, config, value json.RawMessage) View {
	v, err := r.Lookup(typ).Render(config, value)
	if err != nil {
		return Placeholder{Name: typ, Reason: err.Error()}.view()
	}
	return v
}

// Placeholder renders unknown types as a labeled, display-only view.
type Placeholder struct {
	Name   string
	Reason string
}

func (p Placeholder) Type() string { return p.Name }

func (p Placeholder) view() View {
	label := fmt.Sprintf("Unsupported question type %q", p.Name)
	if p.Reason != "" {
		label += ": " + p.Reason
	}
	return View{Kind: KindPlaceholder, Label: label}
}

// Render never fails.
func (p Placeholder) Render(_, _ json.RawMessage) (View, error) {
	return p.view(), nil
}

// Validate accepts any value; the type is not interpreted.
func (p Placeholder) Validate(_, _ json.RawMessage) error { return nil }
