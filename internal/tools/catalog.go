package tools

import (
	"fmt"
	"strings"
)

// Variant selects which second tool a deployment exposes.
type Variant string

const (
	// VariantTasks exposes create_task.
	VariantTasks Variant = "tasks"
	// VariantNotes exposes create_note.
	VariantNotes Variant = "notes"
)

// ParseVariant parses a deployment variant; empty means VariantTasks.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "", VariantTasks:
		return VariantTasks, nil
	case VariantNotes:
		return VariantNotes, nil
	default:
		return "", fmt.Errorf("unknown tool variant %q (expected tasks or notes)", s)
	}
}

// Priorities accepted by create_task.
var Priorities = []string{"low", "medium", "high"}

// Definitions returns the five tool contracts for the variant, in the order
// they are advertised to the provider.
func (v Variant) Definitions() []Definition {
	second := taskDefinition
	if v == VariantNotes {
		second = noteDefinition
	}
	return []Definition{
		appointmentDefinition,
		second,
		emailDraftDefinition,
		templateDefinition,
		contactDefinition,
	}
}

// DefaultCatalog builds the registry for a variant.
func DefaultCatalog(v Variant) *Registry {
	return MustRegistry(v.Definitions()...)
}

var appointmentDefinition = Definition{
	Name:        CreateAppointment,
	Description: "Crea una cita o evento en el calendario del usuario.",
	Parameters: []Parameter{
		{Name: "title", Type: TypeString, Description: "Título de la cita", Required: true},
		{Name: "startOffsetDays", Type: TypeInteger, Description: "Días a partir de hoy (0 = hoy, 1 = mañana)", Required: true},
		{Name: "durationHours", Type: TypeNumber, Description: "Duración en horas", Default: 1},
	},
}

var taskDefinition = Definition{
	Name:        CreateTask,
	Description: "Crea una tarea pendiente en la lista del usuario.",
	Parameters: []Parameter{
		{Name: "title", Type: TypeString, Description: "Descripción de la tarea", Required: true},
		{Name: "priority", Type: TypeString, Description: "Prioridad de la tarea", Enum: Priorities, Default: "medium"},
	},
}

var noteDefinition = Definition{
	Name:        CreateNote,
	Description: "Guarda una nota para el usuario.",
	Parameters: []Parameter{
		{Name: "title", Type: TypeString, Description: "Título de la nota", Required: true},
		{Name: "content", Type: TypeString, Description: "Contenido de la nota"},
		{Name: "tags", Type: TypeArray, Items: TypeString, Description: "Etiquetas"},
	},
}

var emailDraftDefinition = Definition{
	Name:        CreateEmailDraft,
	Description: "Redacta un borrador de correo electrónico.",
	Parameters: []Parameter{
		{Name: "recipient", Type: TypeString, Description: "Dirección del destinatario"},
		{Name: "subject", Type: TypeString, Description: "Asunto del correo", Required: true},
		{Name: "body", Type: TypeString, Description: "Cuerpo del correo", Required: true},
	},
}

var templateDefinition = Definition{
	Name:        CreateTemplate,
	Description: "Guarda una plantilla de texto reutilizable.",
	Parameters: []Parameter{
		{Name: "name", Type: TypeString, Description: "Nombre de la plantilla", Required: true},
		{Name: "content", Type: TypeString, Description: "Contenido de la plantilla", Required: true},
	},
}

var contactDefinition = Definition{
	Name:        CreateContact,
	Description: "Añade un contacto a la agenda del usuario.",
	Parameters: []Parameter{
		{Name: "name", Type: TypeString, Description: "Nombre completo", Required: true},
		{Name: "phone", Type: TypeString, Description: "Teléfono"},
		{Name: "email", Type: TypeString, Description: "Correo electrónico"},
	},
}
