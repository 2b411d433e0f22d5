// Package commands holds the operations a group can run once the
// dispatcher has authenticated it. Every command consumes the decoded
// request fields and answers with a result map.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/auth"
	"corrade/internal/cache"
	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/notify"
	"corrade/internal/session"
	"corrade/internal/wire"
)

// Error is a failure whose message is safe to return to the caller.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func fail(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrCommandNotFound = &Error{Msg: "command not found"}
	ErrAccessDenied    = &Error{Msg: "access denied"}
	ErrTimeout         = &Error{Msg: "timeout"}
)

// Outcome labels for metrics.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeDenied   = "denied"
	OutcomeNotFound = "not_found"
)

// Request is one authenticated command.
type Request struct {
	Group      model.Group
	Fields     map[string]string
	Sender     string
	Identifier string
}

// Field returns a request field, matching the key case-insensitively when
// there is no exact match.
func (r Request) Field(name string) string {
	if v, ok := r.Fields[name]; ok {
		return v
	}
	for k, v := range r.Fields {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Offers is the pending inventory offer book.
type Offers interface {
	Pending() []model.InventoryOffer
	Decide(ctx context.Context, id uuid.UUID, accept bool) error
}

// Dialogs remembers script dialogs until they are answered.
type Dialogs interface {
	Dialog(id uuid.UUID) (session.ScriptDialogEvent, bool)
	Forget(id uuid.UUID)
}

// RegistrationStore persists notification registrations.
type RegistrationStore interface {
	SaveRegistrations(ctx context.Context, regs []model.Registration) error
}

// Env is what commands may touch.
type Env struct {
	Session  session.Session
	Resolver *cache.Resolver
	Config   *config.Live
	Groups   *auth.Groups
	Registry *notify.Registry
	Store    RegistrationStore
	Effects  *notify.Effects
	Offers   Offers
	Dialogs  Dialogs
	Logger   *slog.Logger
}

type Handler func(ctx context.Context, env *Env, req Request) (map[string]string, error)

type Command struct {
	Name       string
	Permission model.Permission
	Run        Handler
}

type Registry struct {
	commands map[string]Command
}

func NewRegistry(cmds ...Command) *Registry {
	r := &Registry{commands: make(map[string]Command, len(cmds))}
	for _, c := range cmds {
		r.commands[strings.ToLower(c.Name)] = c
	}
	return r
}

// Default holds every built-in command.
func Default() *Registry {
	var all []Command
	all = append(all, systemCommands()...)
	all = append(all, worldCommands()...)
	all = append(all, inventoryCommands()...)
	return NewRegistry(all...)
}

func (r *Registry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Execute runs the command named by the request and renders its result.
// A panic inside the command is reported as a failure.
func (r *Registry) Execute(ctx context.Context, env *Env, req Request) (result map[string]string, outcome string) {
	name := strings.ToLower(req.Field("command"))
	cmd, ok := r.Lookup(name)
	if !ok {
		return render(name, nil, ErrCommandNotFound), OutcomeNotFound
	}
	if cmd.Permission != model.PermissionNone {
		if err := auth.Authorize(req.Group, cmd.Permission); err != nil {
			return render(name, nil, ErrAccessDenied), OutcomeDenied
		}
	}

	data, err := run(ctx, env, req, cmd)
	if err != nil {
		if env.Logger != nil {
			env.Logger.Info("command failed", "command", name, "group", req.Group.Name, "error", err)
		}
		return render(name, data, err), OutcomeFailed
	}
	return render(name, data, nil), OutcomeOK
}

func run(ctx context.Context, env *Env, req Request, cmd Command) (data map[string]string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("command panicked: %v", rec)
		}
	}()
	return cmd.Run(ctx, env, req)
}

func render(name string, data map[string]string, err error) map[string]string {
	out := make(map[string]string, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	out["command"] = name
	if err == nil {
		out["success"] = "True"
		return out
	}
	out["success"] = "False"
	out["error"] = message(err)
	return out
}

func message(err error) string {
	var ce *Error
	switch {
	case errors.As(err, &ce):
		return ce.Msg
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout.Msg
	case errors.Is(err, session.ErrNotFound):
		return "not found"
	default:
		return err.Error()
	}
}

func csvData(values ...string) map[string]string {
	return map[string]string{"data": wire.CSV(values)}
}

func ids(list []uuid.UUID) []string {
	out := make([]string, len(list))
	for i, id := range list {
		out[i] = id.String()
	}
	return out
}

// withTimeout bounds ctx by the configured services timeout.
func withTimeout(ctx context.Context, env *Env) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, config.ServicesTimeout(env.Config.Get()))
}
