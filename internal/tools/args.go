package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Args is the decoded argument payload of one tool call. The concrete type
// is selected by tool name.
type Args interface {
	ToolName() string
}

// AppointmentArgs are the arguments of create_appointment.
type AppointmentArgs struct {
	Title           string  `json:"title"`
	StartOffsetDays int     `json:"startOffsetDays"`
	DurationHours   float64 `json:"durationHours"`
}

// TaskArgs are the arguments of create_task.
type TaskArgs struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

// NoteArgs are the arguments of create_note.
type NoteArgs struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// EmailDraftArgs are the arguments of create_email_draft.
type EmailDraftArgs struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// TemplateArgs are the arguments of create_template.
type TemplateArgs struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ContactArgs are the arguments of create_contact.
type ContactArgs struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (AppointmentArgs) ToolName() string { return CreateAppointment }
func (TaskArgs) ToolName() string        { return CreateTask }
func (NoteArgs) ToolName() string        { return CreateNote }
func (EmailDraftArgs) ToolName() string  { return CreateEmailDraft }
func (TemplateArgs) ToolName() string    { return CreateTemplate }
func (ContactArgs) ToolName() string     { return CreateContact }

func (a AppointmentArgs) validate() error {
	if a.StartOffsetDays < 0 {
		return &ArgumentError{Tool: CreateAppointment, Field: "startOffsetDays", Reason: "must not be negative"}
	}
	if a.DurationHours <= 0 {
		return &ArgumentError{Tool: CreateAppointment, Field: "durationHours", Reason: "must be positive"}
	}
	return nil
}

func (a EmailDraftArgs) validate() error {
	if a.Recipient == "" {
		return nil
	}
	if _, err := mail.ParseAddress(a.Recipient); err != nil {
		return &ArgumentError{Tool: CreateEmailDraft, Field: "recipient", Reason: "must be a single email address"}
	}
	return nil
}

type validator interface {
	validate() error
}

// ArgumentError reports a tool-call payload that failed validation.
type ArgumentError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// ParseArgs validates raw against the definition's contract, applies
// defaults, and decodes it into the tool's typed payload.
func ParseArgs(def Definition, raw string) (Args, error) {
	fields, err := decodeObject(def.Name, raw)
	if err != nil {
		return nil, err
	}
	if err := applyContract(def, fields); err != nil {
		return nil, err
	}

	switch def.Name {
	case CreateAppointment:
		return decodeAs[AppointmentArgs](def.Name, fields)
	case CreateTask:
		return decodeAs[TaskArgs](def.Name, fields)
	case CreateNote:
		return decodeAs[NoteArgs](def.Name, fields)
	case CreateEmailDraft:
		return decodeAs[EmailDraftArgs](def.Name, fields)
	case CreateTemplate:
		return decodeAs[TemplateArgs](def.Name, fields)
	case CreateContact:
		return decodeAs[ContactArgs](def.Name, fields)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, def.Name)
	}
}

func decodeObject(tool, raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, &ArgumentError{Tool: tool, Reason: "payload is not a JSON object"}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// applyContract checks required fields and enums and fills defaults in place.
func applyContract(def Definition, fields map[string]any) error {
	for _, p := range def.Parameters {
		v, present := fields[p.Name]
		if present && v == nil {
			delete(fields, p.Name)
			present = false
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" && p.Type == TypeString {
			delete(fields, p.Name)
			present = false
		}

		if !present {
			if p.Required {
				return &ArgumentError{Tool: def.Name, Field: p.Name, Reason: "required"}
			}
			if p.Default != nil {
				fields[p.Name] = p.Default
			}
			continue
		}

		if p.Type == TypeInteger && !integral(v) {
			return &ArgumentError{Tool: def.Name, Field: p.Name, Reason: "must be an integer"}
		}

		if len(p.Enum) > 0 {
			s, ok := v.(string)
			if !ok {
				return &ArgumentError{Tool: def.Name, Field: p.Name, Reason: "must be a string"}
			}
			s = strings.ToLower(strings.TrimSpace(s))
			if !contains(p.Enum, s) {
				return &ArgumentError{Tool: def.Name, Field: p.Name, Reason: "must be one of " + strings.Join(p.Enum, ", ")}
			}
			fields[p.Name] = s
		}
	}
	return nil
}

// integral reports false only for numbers with a fractional part. Values
// that are not numeric are left to the decoder.
func integral(v any) bool {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return true
		}
		f = parsed
	default:
		return true
	}
	return f == math.Trunc(f)
}

func decodeAs[T Args](tool string, fields map[string]any) (Args, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(fields); err != nil {
		return nil, &ArgumentError{Tool: tool, Reason: firstDecodeError(err)}
	}
	if v, ok := any(out).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func firstDecodeError(err error) string {
	if merr, ok := err.(*mapstructure.Error); ok && len(merr.Errors) > 0 {
		return merr.Errors[0]
	}
	return err.Error()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
