package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/alcance/internal/assistant"
	"github.com/normanking/alcance/internal/config"
	"github.com/normanking/alcance/internal/dispatch"
	"github.com/normanking/alcance/internal/router"
)

func TestRenderResponse(t *testing.T) {
	action := dispatch.Action{Type: dispatch.ActionAppointment, Data: dispatch.Appointment{Title: "reunión", Simulated: true}}
	resp := &assistant.Response{
		Message: `(Simulado) Agendada: "reunión".`,
		Actions: []dispatch.Action{action},
		Action:  &action,
		View:    dispatch.ViewCalendar,
	}

	var buf bytes.Buffer
	require.NoError(t, renderResponse(&buf, resp))
	out := buf.String()
	assert.Contains(t, out, "Agendada")
	assert.Contains(t, out, "create_appointment")
	assert.Contains(t, out, "vista: calendar")
}

func TestBuildRegistry(t *testing.T) {
	tests := []struct {
		variant string
		second  string
		wantErr bool
	}{
		{"", "create_task", false},
		{"notes", "create_note", false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			reg, _, err := buildRegistry(tt.variant)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.second, reg.Names()[1])

			raw, err := json.Marshal(reg.OpenAITools())
			require.NoError(t, err)
			assert.Contains(t, string(raw), `"create_appointment"`)
		})
	}
}

func TestBuildPolicy(t *testing.T) {
	p := buildPolicy(config.RoutingConfig{
		Economy:  config.TargetConfig{Backend: "deepseek", Model: "deepseek-chat"},
		Premium:  config.TargetConfig{Backend: "openai", Model: "gpt-4o"},
		Keywords: []string{"factura"},
	})
	assert.Equal(t, router.BackendDeepSeek, p.Route("envía la factura", router.TierPro).Backend)
	assert.Equal(t, "gpt-4o", p.Route("hola", router.TierPro).Model)
}

func TestBuildApp(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	cfg.Logging.File = filepath.Join(cfg.Data.Dir, "logs", "alcance.log")
	cfg.Auth.SessionSecret = "test-secret"
	cfg.Assistant.Timezone = "UTC"

	a, err := buildApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.assistant)
	assert.Equal(t, 5, a.registry.Len())
	require.NoError(t, a.store.Health())
}

func TestBuildApp_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	cfg.Assistant.Variant = "everything"

	_, err := buildApp(cfg)
	assert.Error(t, err)
}
