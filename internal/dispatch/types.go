// Package dispatch executes the tool calls returned by the chat-completion
// provider. Calls run one at a time in arrival order; each produces a
// confirmation fragment and an action record, or an error fragment that never
// prevents later calls from running.
package dispatch

import (
	"context"
	"time"
)

// ActionType identifies the kind of action record handed back to the caller.
type ActionType string

const (
	ActionAppointment ActionType = "create_appointment"
	ActionTask        ActionType = "create_task"
	ActionNote        ActionType = "create_note"
	ActionEmail       ActionType = "create_email"
	ActionTemplate    ActionType = "create_template"
	ActionContact     ActionType = "create_contact"
	ActionSwitchView  ActionType = "switch_view"
)

// Action is the typed record of one dispatched tool call. It is never
// mutated after dispatch returns.
type Action struct {
	Type ActionType `json:"type"`
	Data any        `json:"data"`
}

// View is a client screen.
type View string

const (
	ViewChat      View = "chat"
	ViewCalendar  View = "calendar"
	ViewTasks     View = "tasks"
	ViewNotes     View = "notes"
	ViewEmails    View = "emails"
	ViewTemplates View = "templates"
	ViewContacts  View = "contacts"
)

// ViewFor returns the screen the client shows after applying an action.
func ViewFor(t ActionType) View {
	switch t {
	case ActionAppointment:
		return ViewCalendar
	case ActionTask:
		return ViewTasks
	case ActionNote:
		return ViewNotes
	case ActionEmail:
		return ViewEmails
	case ActionTemplate:
		return ViewTemplates
	case ActionContact:
		return ViewContacts
	default:
		return ""
	}
}

// SwitchView builds the action record that moves the client to v.
func SwitchView(v View) Action {
	return Action{Type: ActionSwitchView, Data: ViewChange{View: v}}
}

// ViewChange is the data of a switch_view action.
type ViewChange struct {
	View View `json:"view"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ACTION PAYLOADS
// ═══════════════════════════════════════════════════════════════════════════════

// Appointment is a calendar event.
type Appointment struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Simulated bool      `json:"simulated,omitempty"`
}

// Task is a to-do item.
type Task struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Priority  string `json:"priority"`
	Completed bool   `json:"completed"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Note is a free-form note.
type Note struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title"`
	Content   string   `json:"content,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Simulated bool     `json:"simulated,omitempty"`
}

// EmailDraft is an unsent email.
type EmailDraft struct {
	ID        string `json:"id,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Template is a reusable text snippet.
type Template struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Contact is an address-book entry.
type Contact struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ═══════════════════════════════════════════════════════════════════════════════

// Each collaborator returns the identifier assigned by the backing service.

type Calendar interface {
	CreateEvent(ctx context.Context, a Appointment) (string, error)
}

type TaskList interface {
	CreateTask(ctx context.Context, t Task) (string, error)
}

type Mailer interface {
	CreateDraft(ctx context.Context, d EmailDraft) (string, error)
}

type ContactBook interface {
	CreateContact(ctx context.Context, c Contact) (string, error)
}

type NoteStore interface {
	CreateNote(ctx context.Context, userID string, n Note) (string, error)
}

type TemplateStore interface {
	CreateTemplate(ctx context.Context, userID string, t Template) (string, error)
}

// Services are the collaborators available to one request. A nil field
// means the integration is not connected and its actions are simulated.
type Services struct {
	Calendar  Calendar
	Tasks     TaskList
	Mail      Mailer
	Contacts  ContactBook
	Notes     NoteStore
	Templates TemplateStore
}
