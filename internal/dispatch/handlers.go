package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/alcance/internal/tools"
)

// SimulatedPrefix marks a confirmation for an action whose integration is
// not connected.
const SimulatedPrefix = "(Simulado) "

type outcome struct {
	fragment  string
	action    Action
	id        string
	simulated bool
}

type handler func(ctx context.Context, userID string, svc Services, args tools.Args) (outcome, error)

func (d *Dispatcher) handlerTable() map[string]handler {
	return map[string]handler{
		tools.CreateAppointment: d.createAppointment,
		tools.CreateTask:        d.createTask,
		tools.CreateNote:        d.createNote,
		tools.CreateEmailDraft:  d.createEmailDraft,
		tools.CreateTemplate:    d.createTemplate,
		tools.CreateContact:     d.createContact,
	}
}

func confirm(simulated bool, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if simulated {
		return SimulatedPrefix + msg
	}
	return msg
}

func (d *Dispatcher) createAppointment(ctx context.Context, _ string, svc Services, args tools.Args) (outcome, error) {
	a := args.(tools.AppointmentArgs)
	start := d.startOf(a.StartOffsetDays)
	appt := Appointment{
		Title: a.Title,
		Start: start,
		End:   start.Add(time.Duration(a.DurationHours * float64(time.Hour))),
	}

	if svc.Calendar == nil {
		appt.Simulated = true
	} else {
		id, err := svc.Calendar.CreateEvent(ctx, appt)
		if err != nil {
			return outcome{}, err
		}
		appt.ID = id
	}

	return outcome{
		fragment:  confirm(appt.Simulated, "Agendada: \"%s\".", appt.Title),
		action:    Action{Type: ActionAppointment, Data: appt},
		id:        appt.ID,
		simulated: appt.Simulated,
	}, nil
}

func (d *Dispatcher) createTask(ctx context.Context, _ string, svc Services, args tools.Args) (outcome, error) {
	a := args.(tools.TaskArgs)
	task := Task{Title: a.Title, Priority: a.Priority}

	if svc.Tasks == nil {
		task.Simulated = true
	} else {
		id, err := svc.Tasks.CreateTask(ctx, task)
		if err != nil {
			return outcome{}, err
		}
		task.ID = id
	}

	return outcome{
		fragment:  confirm(task.Simulated, "Anotado en tareas: \"%s\".", task.Title),
		action:    Action{Type: ActionTask, Data: task},
		id:        task.ID,
		simulated: task.Simulated,
	}, nil
}

func (d *Dispatcher) createNote(ctx context.Context, userID string, svc Services, args tools.Args) (outcome, error) {
	a := args.(tools.NoteArgs)
	note := Note{Title: a.Title, Content: a.Content, Tags: a.Tags}

	if svc.Notes == nil {
		note.Simulated = true
	} else {
		id, err := svc.Notes.CreateNote(ctx, userID, note)
		if err != nil {
			return outcome{}, err
		}
		note.ID = id
	}

	return outcome{
		fragment:  confirm(note.Simulated, "Nota guardada: \"%s\".", note.Title),
		action:    Action{Type: ActionNote, Data: note},
		id:        note.ID,
		simulated: note.Simulated,
	}, nil
}

func (d *Dispatcher) createEmailDraft(ctx context.Context, _ string, svc Services, args tools.Args) (outcome, error) {
	a := args.(tools.EmailDraftArgs)
	draft := EmailDraft{Recipient: a.Recipient, Subject: a.Subject, Body: a.Body}

	if svc.Mail == nil {
		draft.Simulated = true
	} else {
		id, err := svc.Mail.CreateDraft(ctx, draft)
		if err != nil {
			return outcome{}, err
		}
		draft.ID = id
	}

	return outcome{
		fragment:  confirm(draft.Simulated, "He creado el borrador del correo sobre \"%s\".", draft.Subject),
		action:    Action{Type: ActionEmail, Data: draft},
		id:        draft.ID,
		simulated: draft.Simulated,
	}, nil
}

// createTemplate has no external integration; without a store the client
// keeps the template from the action record.
func (d *Dispatcher) createTemplate(ctx context.Context, userID string, svc Services, args tools.Args) (outcome, error) {
	a := args.(tools.TemplateArgs)
	tpl := Template{Name: a.Name, Content: a.Content}

	if svc.Templates != nil {
		id, err := svc.Templates.CreateTemplate(ctx, userID, tpl)
		if err != nil {
			return outcome{}, err
		}
		tpl.ID = id
	}

	return outcome{
		fragment: fmt.Sprintf("Plantilla \"%s\" guardada.", tpl.Name),
		action:   Action{Type: ActionTemplate, Data: tpl},
		id:       tpl.ID,
	}, nil
}

func (d *Dispatcher) createContact(ctx context.Context, _ string, svc Services, args tools.Args) (outcome, error) {
	a := args.(tools.ContactArgs)
	contact := Contact{Name: a.Name, Phone: a.Phone, Email: a.Email}

	if svc.Contacts == nil {
		contact.Simulated = true
	} else {
		id, err := svc.Contacts.CreateContact(ctx, contact)
		if err != nil {
			return outcome{}, err
		}
		contact.ID = id
	}

	return outcome{
		fragment:  confirm(contact.Simulated, "Contacto \"%s\" añadido.", contact.Name),
		action:    Action{Type: ActionContact, Data: contact},
		id:        contact.ID,
		simulated: contact.Simulated,
	}, nil
}
