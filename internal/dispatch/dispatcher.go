package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/llm"
	"github.com/normanking/alcance/internal/metrics"
	"github.com/normanking/alcance/internal/tools"
)

// UnknownPolicy decides what happens to tool calls whose name is not registered.
type UnknownPolicy string

const (
	// UnknownDrop logs and skips the call.
	UnknownDrop UnknownPolicy = "drop"
	// UnknownSurface adds a visible fragment naming the call.
	UnknownSurface UnknownPolicy = "surface"
)

// ParseUnknownPolicy parses a policy name; empty means UnknownDrop.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return UnknownDrop, nil
	case UnknownDrop, UnknownSurface:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tool policy %q (expected drop or surface)", s)
	}
}

const (
	// DefaultCallTimeout bounds each collaborator call.
	DefaultCallTimeout = 10 * time.Second
	// DefaultAppointmentHour is the local hour new appointments start at.
	DefaultAppointmentHour = 10
)

// Failure records one tool call that did not complete.
type Failure struct {
	Tool string
	Err  error
}

// Result is the aggregate of one dispatch run.
type Result struct {
	// Fragments are the confirmation and error texts in arrival order.
	Fragments []string
	// Actions are the records of the calls that completed, in arrival order.
	Actions []Action
	// Failures are the calls that failed validation or execution.
	Failures []Failure
	// Skipped are the unregistered tool names that were ignored.
	Skipped []string
}

// Message joins the fragments into one reply.
func (r *Result) Message() string {
	return strings.Join(r.Fragments, " ")
}

// View is the screen implied by the last completed action.
func (r *Result) View() View {
	if len(r.Actions) == 0 {
		return ""
	}
	return ViewFor(r.Actions[len(r.Actions)-1].Type)
}

// Dispatcher maps tool calls to handlers. It holds no per-request state and
// is safe for concurrent use.
type Dispatcher struct {
	registry    *tools.Registry
	handlers    map[string]handler
	unknown     UnknownPolicy
	callTimeout time.Duration
	now         func() time.Time
	location    *time.Location
	startHour   int
	log         zerolog.Logger
}

// Option is a functional option for configuring Dispatcher.
type Option func(*Dispatcher)

// WithUnknownPolicy sets what happens to unregistered tool names.
func WithUnknownPolicy(p UnknownPolicy) Option {
	return func(d *Dispatcher) {
		d.unknown = p
	}
}

// WithCallTimeout bounds each collaborator call. Zero disables the bound.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.callTimeout = timeout
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithLocation sets the timezone appointments are scheduled in.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithAppointmentHour sets the local start hour of new appointments.
func WithAppointmentHour(hour int) Option {
	return func(d *Dispatcher) {
		d.startHour = hour
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates a dispatcher for the tools in registry.
func New(registry *tools.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		unknown:     UnknownDrop,
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
		location:    time.Local,
		startHour:   DefaultAppointmentHour,
		log:         log.With().Str("component", "dispatch").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = d.handlerTable()
	return d
}

// Dispatch runs calls sequentially for userID against svc.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, svc Services, calls []llm.ToolCall) *Result {
	res := &Result{}
	for i, call := range calls {
		logger := d.log.With().Str("user", userID).Str("tool", call.Name).Int("index", i).Logger()

		h, ok := d.handlers[call.Name]
		if !ok {
			d.skip(res, call, logger)
			continue
		}

		args, err := d.registry.Parse(call.Name, call.Arguments)
		if err != nil {
			if errors.Is(err, tools.ErrUnknownTool) {
				d.skip(res, call, logger)
				continue
			}
			metrics.ToolCalls.WithLabelValues(call.Name, metrics.OutcomeInvalid).Inc()
			logger.Warn().Err(err).Msg("invalid tool arguments")
			d.fail(res, call.Name, err)
			continue
		}

		out, err := d.invoke(ctx, h, userID, svc, args)
		if err != nil {
			metrics.ToolCalls.WithLabelValues(call.Name, metrics.OutcomeFailed).Inc()
			logger.Warn().Err(err).Msg("tool call failed")
			d.fail(res, call.Name, err)
			continue
		}

		outcome := metrics.OutcomeOK
		if out.simulated {
			outcome = metrics.OutcomeSimulated
		}
		metrics.ToolCalls.WithLabelValues(call.Name, outcome).Inc()
		logger.Debug().Str("outcome", outcome).Str("id", out.id).Msg("tool call dispatched")

		res.Fragments = append(res.Fragments, out.fragment)
		res.Actions = append(res.Actions, out.action)
	}
	return res
}

// invoke runs one handler under the per-call timeout and converts panics
// into errors.
func (d *Dispatcher) invoke(ctx context.Context, h handler, userID string, svc Services, args tools.Args) (out outcome, err error) {
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	out, err = h(ctx, userID, svc, args)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return out, err
}

func (d *Dispatcher) skip(res *Result, call llm.ToolCall, logger zerolog.Logger) {
	metrics.ToolCalls.WithLabelValues(call.Name, metrics.OutcomeUnknown).Inc()
	logger.Warn().Str("policy", string(d.unknown)).Msg("unknown tool call")
	res.Skipped = append(res.Skipped, call.Name)
	if d.unknown == UnknownSurface {
		res.Fragments = append(res.Fragments, fmt.Sprintf("Función no reconocida: %s.", call.Name))
	}
}

func (d *Dispatcher) fail(res *Result, tool string, err error) {
	res.Failures = append(res.Failures, Failure{Tool: tool, Err: err})
	res.Fragments = append(res.Fragments, fmt.Sprintf("Error en %s: %s.", tool, describe(err)))
}

// describe renders an error for the user-facing fragment.
func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "tiempo de espera agotado"
	case errors.Is(err, context.Canceled):
		return "operación cancelada"
	}
	return strings.TrimRight(err.Error(), ". ")
}

// startOf returns the start time of an appointment offset days from today.
func (d *Dispatcher) startOf(offsetDays int) time.Time {
	now := d.now().In(d.location)
	return time.Date(now.Year(), now.Month(), now.Day()+offsetDays, d.startHour, 0, 0, 0, d.location)
}
