package assistant

import (
	"fmt"
	"time"

	"github.com/normanking/alcance/internal/tools"
)

// SystemPrompt returns the instructions sent with every command. The date
// anchors relative offsets such as "mañana".
func SystemPrompt(v tools.Variant, today time.Time) string {
	second := "tareas"
	if v == tools.VariantNotes {
		second = "notas"
	}
	return fmt.Sprintf(`Eres IATUALCANCE, un asistente personal inteligente y eficiente.
Tu objetivo es ayudar al usuario a gestionar su agenda, %s, correos, plantillas y contactos.
Hoy es %s.

Reglas:
1. Si el usuario pide crear algo (cita, %s, email, plantilla, contacto), USA LAS TOOLS disponibles.
2. Para citas, startOffsetDays es el número de días desde hoy (0 = hoy, 1 = mañana).
3. Sé profesional pero cercano.
4. Si usas una tool, responde confirmando brevemente la acción.`,
		second, today.Format("2006-01-02"), second[:len(second)-1])
}
