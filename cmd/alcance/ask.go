package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/normanking/alcance/internal/assistant"
	"github.com/normanking/alcance/internal/dispatch"
)

// cliUser is the profile ID one-shot commands run as.
const cliUser = "cli"

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND (One-shot command)
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [command]",
		Short: "Run one command through the assistant",
		Long: `Run a natural-language command as the local "cli" user.

Examples:
  alcance ask "Agenda una reunión mañana"
  alcance ask --json "Crea una tarea: comprar pan"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resp := a.assistant.Process(ctx, assistant.Command{
				UserID: cliUser,
				Text:   strings.Join(args, " "),
			})

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return renderResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response as JSON")
	return cmd
}

// ───────────────────────────────────────────────────────────────────────────────
// RENDERING
// ───────────────────────────────────────────────────────────────────────────────

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// renderResponse prints the message as markdown followed by one line per
// action.
func renderResponse(w io.Writer, resp *assistant.Response) error {
	lipgloss.SetColorProfile(termenv.EnvColorProfile())

	message := resp.Message
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		if out, err := renderer.Render(resp.Message); err == nil {
			message = out
		}
	}

	fmt.Fprintln(w, headerStyle.Render("Alcance"))
	fmt.Fprint(w, message)
	if !strings.HasSuffix(message, "\n") {
		fmt.Fprintln(w)
	}

	for _, action := range resp.Actions {
		fmt.Fprintln(w, actionStyle.Render("• "+describeAction(action)))
	}
	if resp.View != "" {
		fmt.Fprintln(w, dimStyle.Render("vista: "+string(resp.View)))
	}
	return nil
}

func describeAction(a dispatch.Action) string {
	raw, err := json.Marshal(a.Data)
	if err != nil {
		return string(a.Type)
	}
	return fmt.Sprintf("%s %s", a.Type, raw)
}
