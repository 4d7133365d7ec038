// Package tools defines the callable actions the assistant exposes to the
// chat-completion provider: their parameter contracts, the process-wide
// registry, and the typed argument payloads decoded at dispatch time.
package tools

import (
	"github.com/sashabaranov/go-openai"
)

// ParamType is the JSON-schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeArray   ParamType = "array"
)

// Tool names.
const (
	CreateAppointment = "create_appointment"
	CreateTask        = "create_task"
	CreateNote        = "create_note"
	CreateEmailDraft  = "create_email_draft"
	CreateTemplate    = "create_template"
	CreateContact     = "create_contact"
)

// Parameter is one named field of a tool's argument object.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	// Items is the element type when Type is TypeArray.
	Items ParamType `json:"items,omitempty"`
}

// Definition describes one callable action.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Required returns the names of the required parameters in declaration order.
func (d Definition) Required() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Parameter looks up a parameter by name.
func (d Definition) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// JSONSchema renders the parameter contract as a JSON-schema object.
func (d Definition) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Type == TypeArray {
			items := p.Items
			if items == "" {
				items = TypeString
			}
			prop["items"] = map[string]any{"type": string(items)}
		}
		props[p.Name] = prop
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := d.Required(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

// OpenAITool converts the definition to the wire shape used by
// OpenAI-compatible chat-completion endpoints.
func (d Definition) OpenAITool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.JSONSchema(),
		},
	}
}

func (d Definition) clone() Definition {
	out := d
	out.Parameters = make([]Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Enum = append([]string(nil), p.Enum...)
		out.Parameters[i] = p
	}
	return out
}
