package tools

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrUnknownTool is returned when a tool name does not resolve to a definition.
var ErrUnknownTool = errors.New("unknown tool")

// Registry is an immutable, ordered set of tool definitions. It is built once
// at startup and shared by every request; all accessors return copies.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry builds a registry, preserving the given order.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("tool definition without name")
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool definition: %s", d.Name)
		}
		seen := make(map[string]bool, len(d.Parameters))
		for _, p := range d.Parameters {
			if p.Name == "" {
				return nil, fmt.Errorf("tool %s: parameter without name", d.Name)
			}
			if seen[p.Name] {
				return nil, fmt.Errorf("tool %s: duplicate parameter %s", d.Name, p.Name)
			}
			seen[p.Name] = true
		}
		r.index[d.Name] = len(r.defs)
		r.defs = append(r.defs, d.clone())
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on an invalid definition set.
func MustRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.clone()
	}
	return out
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i].clone(), true
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.defs)
}

// OpenAITools returns the tool list sent with every completion request.
func (r *Registry) OpenAITools() []openai.Tool {
	out := make([]openai.Tool, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.OpenAITool()
	}
	return out
}

// Parse resolves name and decodes raw into its typed argument payload.
// Unknown names yield ErrUnknownTool; bad payloads yield *ArgumentError.
func (r *Registry) Parse(name, raw string) (Args, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return ParseArgs(r.defs[i], raw)
}
