// Package google implements the assistant's calendar, task, mail and
// contact collaborators on Google Workspace APIs.
package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	people "google.golang.org/api/people/v1"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/normanking/alcance/internal/dispatch"
)

// DefaultTaskList is used when the user has no task lists.
const DefaultTaskList = "@default"

// Workspace talks to one user's Google account.
type Workspace struct {
	calendar *calendar.Service
	tasks    *tasks.Service
	gmail    *gmail.Service
	people   *people.Service
}

// NewWorkspace creates API clients sharing opts, typically
// option.WithTokenSource for the user's token.
func NewWorkspace(ctx context.Context, opts ...option.ClientOption) (*Workspace, error) {
	cal, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	tsk, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tasks client: %w", err)
	}
	gm, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail client: %w", err)
	}
	ppl, err := people.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("people client: %w", err)
	}
	return &Workspace{calendar: cal, tasks: tsk, gmail: gm, people: ppl}, nil
}

// Services returns the workspace as dispatch collaborators.
func (w *Workspace) Services() dispatch.Services {
	return dispatch.Services{
		Calendar: w,
		Tasks:    w,
		Mail:     w,
		Contacts: w,
	}
}

// CreateEvent inserts an event in the primary calendar.
func (w *Workspace) CreateEvent(ctx context.Context, a dispatch.Appointment) (string, error) {
	ev := &calendar.Event{
		Summary: a.Title,
		Start:   eventTime(a.Start),
		End:     eventTime(a.End),
	}
	created, err := w.calendar.Events.Insert("primary", ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func eventTime(t time.Time) *calendar.EventDateTime {
	edt := &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); name != "" && name != "Local" {
		edt.TimeZone = name
	}
	return edt
}

// CreateTask adds a task to the user's first task list.
func (w *Workspace) CreateTask(ctx context.Context, t dispatch.Task) (string, error) {
	list := DefaultTaskList
	lists, err := w.tasks.Tasklists.List().MaxResults(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list task lists: %w", err)
	}
	if len(lists.Items) > 0 && lists.Items[0].Id != "" {
		list = lists.Items[0].Id
	}

	task := &tasks.Task{Title: t.Title}
	if t.Priority != "" {
		task.Notes = "Prioridad: " + t.Priority
	}
	created, err := w.tasks.Tasks.Insert(list, task).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return created.Id, nil
}

// CreateDraft stores an unsent message in Gmail.
func (w *Workspace) CreateDraft(ctx context.Context, d dispatch.EmailDraft) (string, error) {
	raw, err := EncodeMessage(d)
	if err != nil {
		return "", err
	}
	draft := &gmail.Draft{Message: &gmail.Message{Raw: raw}}
	created, err := w.gmail.Users.Drafts.Create("me", draft).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	return created.Id, nil
}

// EncodeMessage renders d as a base64url RFC 822 message. The recipient must
// parse as a single address.
func EncodeMessage(d dispatch.EmailDraft) (string, error) {
	var b strings.Builder
	if d.Recipient != "" {
		addr, err := mail.ParseAddress(d.Recipient)
		if err != nil {
			return "", fmt.Errorf("invalid recipient: %w", err)
		}
		to := addr.Address
		if addr.Name != "" {
			to = addr.String()
		}
		fmt.Fprintf(&b, "To: %s\r\n", to)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", d.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(d.Body)
	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}

// CreateContact adds a person to the user's contacts.
func (w *Workspace) CreateContact(ctx context.Context, c dispatch.Contact) (string, error) {
	p := &people.Person{Names: []*people.Name{{GivenName: c.Name}}}
	if c.Phone != "" {
		p.PhoneNumbers = []*people.PhoneNumber{{Value: c.Phone}}
	}
	if c.Email != "" {
		p.EmailAddresses = []*people.EmailAddress{{Value: c.Email}}
	}
	created, err := w.people.People.CreateContact(p).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return created.ResourceName, nil
}
