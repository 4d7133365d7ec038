package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/alcance/internal/llm"
	"github.com/normanking/alcance/internal/tools"
)

// ===========================================================================
// FAKES
// ===========================================================================

type fakeCalendar struct {
	events []Appointment
	err    error
}

func (f *fakeCalendar) CreateEvent(_ context.Context, a Appointment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, a)
	return "evt-1", nil
}

type fakeTasks struct{ tasks []Task }

func (f *fakeTasks) CreateTask(_ context.Context, t Task) (string, error) {
	f.tasks = append(f.tasks, t)
	return "task-1", nil
}

type failingContacts struct{ err error }

func (f failingContacts) CreateContact(context.Context, Contact) (string, error) {
	return "", f.err
}

type slowMailer struct{}

func (slowMailer) CreateDraft(ctx context.Context, _ EmailDraft) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type panickyNotes struct{}

func (panickyNotes) CreateNote(context.Context, string, Note) (string, error) {
	panic("boom")
}

type memTemplates struct {
	byUser map[string][]Template
}

func (m *memTemplates) CreateTemplate(_ context.Context, userID string, t Template) (string, error) {
	if m.byUser == nil {
		m.byUser = make(map[string][]Template)
	}
	m.byUser[userID] = append(m.byUser[userID], t)
	return "tpl-1", nil
}

var fixedNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func newDispatcher(variant tools.Variant, opts ...Option) *Dispatcher {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	}
	return New(tools.DefaultCatalog(variant), append(base, opts...)...)
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_" + name, Name: name, Arguments: args}
}

// ===========================================================================
// DISPATCH TESTS
// ===========================================================================

func TestDispatch_SimulatedAppointment(t *testing.T) {
	d := newDispatcher(tools.VariantTasks)

	res := d.Dispatch(context.Background(), "u1", Services{}, []llm.ToolCall{
		call(tools.CreateAppointment, `{"title":"reunión","startOffsetDays":1}`),
	})

	assert.Equal(t, `(Simulado) Agendada: "reunión".`, res.Message())
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionAppointment, res.Actions[0].Type)

	appt := res.Actions[0].Data.(Appointment)
	assert.True(t, appt.Simulated)
	assert.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), appt.Start)
	assert.Equal(t, time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC), appt.End)
	assert.Equal(t, ViewCalendar, res.View())
}

func TestDispatch_FailureIsolation(t *testing.T) {
	d := newDispatcher(tools.VariantTasks)
	tasks := &fakeTasks{}
	svc := Services{Tasks: tasks, Contacts: failingContacts{err: errors.New("quota exceeded")}}

	res := d.Dispatch(context.Background(), "u1", svc, []llm.ToolCall{
		call(tools.CreateTask, `{"title":"comprar pan"}`),
		call(tools.CreateContact, `{"name":"Ana"}`),
	})

	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionTask, res.Actions[0].Type)
	assert.Equal(t, "task-1", res.Actions[0].Data.(Task).ID)
	require.Len(t, res.Fragments, 2)
	assert.Equal(t, `Anotado en tareas: "comprar pan".`, res.Fragments[0])
	assert.Contains(t, res.Fragments[1], "create_contact")
	assert.Contains(t, res.Fragments[1], "quota exceeded")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, tools.CreateContact, res.Failures[0].Tool)
	assert.Len(t, tasks.tasks, 1)
}

func TestDispatch_PreservesOrder(t *testing.T) {
	d := newDispatcher(tools.VariantTasks)

	res := d.Dispatch(context.Background(), "u1", Services{}, []llm.ToolCall{
		call(tools.CreateTask, `{"title":"a"}`),
		call(tools.CreateAppointment, `{"title":"b","startOffsetDays":0}`),
		call(tools.CreateEmailDraft, `{"subject":"c","body":"d"}`),
	})

	require.Len(t, res.Actions, 3)
	assert.Equal(t, []ActionType{ActionTask, ActionAppointment, ActionEmail},
		[]ActionType{res.Actions[0].Type, res.Actions[1].Type, res.Actions[2].Type})
	assert.Equal(t, ViewEmails, res.View(), "last action wins")
}

func TestDispatch_UnknownTools(t *testing.T) {
	calls := []llm.ToolCall{
		call("launch_rocket", `{}`),
		call(tools.CreateNote, `{"title":"x"}`), // not in the tasks variant
		call(tools.CreateTask, `{"title":"ok"}`),
	}

	t.Run("drop", func(t *testing.T) {
		res := newDispatcher(tools.VariantTasks).Dispatch(context.Background(), "u1", Services{}, calls)
		assert.Equal(t, []string{"launch_rocket", tools.CreateNote}, res.Skipped)
		assert.Equal(t, []string{`(Simulado) Anotado en tareas: "ok".`}, res.Fragments)
		assert.Len(t, res.Actions, 1)
		assert.Empty(t, res.Failures)
	})

	t.Run("surface", func(t *testing.T) {
		res := newDispatcher(tools.VariantTasks, WithUnknownPolicy(UnknownSurface)).
			Dispatch(context.Background(), "u1", Services{}, calls)
		require.Len(t, res.Fragments, 3)
		assert.Equal(t, "Función no reconocida: launch_rocket.", res.Fragments[0])
		assert.Len(t, res.Actions, 1)
	})
}

func TestDispatch_InvalidArguments(t *testing.T) {
	d := newDispatcher(tools.VariantTasks)
	res := d.Dispatch(context.Background(), "u1", Services{}, []llm.ToolCall{
		call(tools.CreateAppointment, `{"title":`),
		call(tools.CreateTemplate, `{"name":"firma","content":"Un saludo"}`),
	})

	require.Len(t, res.Failures, 1)
	var argErr *tools.ArgumentError
	assert.True(t, errors.As(res.Failures[0].Err, &argErr))
	assert.Contains(t, res.Fragments[0], "Error en create_appointment")
	assert.Equal(t, `Plantilla "firma" guardada.`, res.Fragments[1])
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionTemplate, res.Actions[0].Type)
}

func TestDispatch_TimeoutIsFailure(t *testing.T) {
	d := newDispatcher(tools.VariantTasks, WithCallTimeout(20*time.Millisecond))
	res := d.Dispatch(context.Background(), "u1", Services{Mail: slowMailer{}}, []llm.ToolCall{
		call(tools.CreateEmailDraft, `{"subject":"s","body":"b"}`),
		call(tools.CreateContact, `{"name":"Luis"}`),
	})

	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, context.DeadlineExceeded)
	assert.Equal(t, "Error en create_email_draft: tiempo de espera agotado.", res.Fragments[0])
	assert.Equal(t, `(Simulado) Contacto "Luis" añadido.`, res.Fragments[1])
}

func TestDispatch_PanicIsFailure(t *testing.T) {
	d := newDispatcher(tools.VariantNotes)
	res := d.Dispatch(context.Background(), "u1", Services{Notes: panickyNotes{}}, []llm.ToolCall{
		call(tools.CreateNote, `{"title":"x"}`),
	})
	require.Len(t, res.Failures, 1)
	assert.Empty(t, res.Actions)
	assert.Contains(t, res.Fragments[0], "boom")
}

func TestDispatch_RealCollaborators(t *testing.T) {
	cal := &fakeCalendar{}
	tpl := &memTemplates{}
	d := newDispatcher(tools.VariantTasks, WithAppointmentHour(9))

	res := d.Dispatch(context.Background(), "u7", Services{Calendar: cal, Templates: tpl}, []llm.ToolCall{
		call(tools.CreateAppointment, `{"title":"dentista","startOffsetDays":2,"durationHours":0.5}`),
		call(tools.CreateTemplate, `{"name":"firma","content":"Saludos"}`),
	})

	assert.Equal(t, `Agendada: "dentista". Plantilla "firma" guardada.`, res.Message())
	require.Len(t, cal.events, 1)
	assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), cal.events[0].Start)
	assert.Equal(t, 30*time.Minute, cal.events[0].End.Sub(cal.events[0].Start))
	assert.Equal(t, "evt-1", res.Actions[0].Data.(Appointment).ID)
	assert.Len(t, tpl.byUser["u7"], 1)
}

func TestDispatch_Empty(t *testing.T) {
	res := newDispatcher(tools.VariantTasks).Dispatch(context.Background(), "u1", Services{}, nil)
	assert.Empty(t, res.Message())
	assert.Empty(t, res.Actions)
	assert.Equal(t, View(""), res.View())
}

func TestViewFor(t *testing.T) {
	tests := []struct {
		action ActionType
		view   View
	}{
		{ActionAppointment, ViewCalendar},
		{ActionTask, ViewTasks},
		{ActionNote, ViewNotes},
		{ActionEmail, ViewEmails},
		{ActionTemplate, ViewTemplates},
		{ActionContact, ViewContacts},
		{ActionSwitchView, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.view, ViewFor(tt.action))
		})
	}

	a := SwitchView(ViewTasks)
	assert.Equal(t, ActionSwitchView, a.Type)
	assert.Equal(t, ViewChange{View: ViewTasks}, a.Data)
}

func TestParseUnknownPolicy(t *testing.T) {
	p, err := ParseUnknownPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UnknownDrop, p)

	p, err = ParseUnknownPolicy("Surface")
	require.NoError(t, err)
	assert.Equal(t, UnknownSurface, p)

	_, err = ParseUnknownPolicy("ignore")
	assert.Error(t, err)
}
