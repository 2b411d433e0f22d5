// Package rlv executes the scripted restriction protocol that in-world
// objects speak to the agent over owner-say chat:
//
//	@behaviour[:option]=param[,behaviour[:option]=param...]
//
// Params y/add and n/rem edit the rule set, everything else is a behaviour
// that queries or acts on the avatar.
package rlv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"corrade/internal/model"
	"corrade/internal/session"
)

var (
	ErrUnknownBehaviour = errors.New("unknown behaviour")
	ErrBadChannel       = errors.New("reply channel must be a number of at least 1")
	ErrBadParam         = errors.New("invalid parameter")
)

var commandRe = regexp.MustCompile(`^(?P<behaviour>[^:=]+)(:(?P<option>[^=]*))?(=(?P<param>\w+))?$`)

// Command is one parsed token of a rule message.
type Command struct {
	Behaviour string
	Option    string
	Param     string
}

func (c Command) String() string {
	s := c.Behaviour
	if c.Option != "" {
		s += ":" + c.Option
	}
	if c.Param != "" {
		s += "=" + c.Param
	}
	return s
}

// Parse splits message into commands. Tokens that do not match the
// command grammar are returned separately so the caller can report them.
func Parse(message string) (cmds []Command, rejected []string) {
	message = strings.TrimPrefix(strings.TrimSpace(message), "@")
	for _, tok := range strings.Split(message, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		m := commandRe.FindStringSubmatch(tok)
		if m == nil {
			rejected = append(rejected, tok)
			continue
		}
		cmds = append(cmds, Command{
			Behaviour: strings.ToLower(strings.TrimSpace(m[commandRe.SubexpIndex("behaviour")])),
			Option:    m[commandRe.SubexpIndex("option")],
			Param:     m[commandRe.SubexpIndex("param")],
		})
	}
	return cmds, rejected
}

// Store persists the rule set.
type Store interface {
	SaveRLVRules(ctx context.Context, rules []model.RLVRule) error
}

// Recorder counts processed commands by behaviour and outcome.
type Recorder interface {
	RLV(behaviour, outcome string)
}

type Options struct {
	Session session.Session
	Rules   *Rules
	Store   Store
	Logger  *slog.Logger
	// Version is the agent version reported by the version behaviours.
	Version string
	// Timeout bounds each behaviour's session requests.
	Timeout  time.Duration
	Recorder Recorder
}

type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rules == nil {
		opts.Rules = NewRules(nil)
	}
	return &Engine{opts: opts}
}

func (e *Engine) Rules() *Rules { return e.opts.Rules }

// Process runs every command in message on behalf of object, in order.
// A failing command is logged and does not stop the ones after it. The
// rule set is persisted once if any command changed it. Process returns
// the number of commands that succeeded.
func (e *Engine) Process(ctx context.Context, object uuid.UUID, message string) int {
	cmds, rejected := Parse(message)
	for _, tok := range rejected {
		e.opts.Logger.Warn("malformed rlv command", "object", object, "token", tok)
		e.record("malformed", "error")
	}

	ok, mutated := 0, false
	for _, cmd := range cmds {
		changed, err := e.run(ctx, object, cmd)
		mutated = mutated || changed
		switch {
		case err == nil:
			ok++
			e.record(cmd.Behaviour, "ok")
		case errors.Is(err, ErrUnknownBehaviour):
			e.opts.Logger.Warn("rlv behaviour not implemented", "object", object, "command", cmd.String())
			e.record(cmd.Behaviour, "unknown")
		default:
			e.opts.Logger.Warn("rlv command failed", "object", object, "command", cmd.String(), "error", err)
			e.record(cmd.Behaviour, "error")
		}
	}

	if mutated && e.opts.Store != nil {
		if err := e.opts.Store.SaveRLVRules(ctx, e.opts.Rules.List(uuid.Nil)); err != nil {
			e.opts.Logger.Error("persist rlv rules", "error", err)
		}
	}
	return ok
}

// run executes one command, converting a panic into an error.
func (e *Engine) run(ctx context.Context, object uuid.UUID, cmd Command) (mutated bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch strings.ToLower(cmd.Param) {
	case "y", "add":
		// Lifting a restriction only removes; nothing is stored back.
		return e.opts.Rules.Remove(cmd.Behaviour, cmd.Option, object) > 0, nil
	case "n", "rem":
		e.opts.Rules.Upsert(model.RLVRule{
			Behaviour: cmd.Behaviour,
			Option:    cmd.Option,
			Param:     cmd.Param,
			Object:    object,
		})
		return true, nil
	}

	if cmd.Behaviour == "clear" {
		fragment := cmd.Option
		if fragment == "" && cmd.Param != "" && !strings.EqualFold(cmd.Param, "force") {
			fragment = cmd.Param
		}
		return e.opts.Rules.Clear(object, strings.ToLower(fragment)) > 0, nil
	}

	h, ok := behaviours[cmd.Behaviour]
	if !ok {
		return false, fmt.Errorf("%s: %w", cmd.Behaviour, ErrUnknownBehaviour)
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	return false, h(ctx, e, call{Command: cmd, Object: object})
}

func (e *Engine) record(behaviour, outcome string) {
	if e.opts.Recorder != nil {
		e.opts.Recorder.RLV(behaviour, outcome)
	}
}

// reply says message on the channel named by the command's param.
func (e *Engine) reply(ctx context.Context, c call, message string) error {
	ch, err := channel(c.Param)
	if err != nil {
		return err
	}
	return e.opts.Session.Say(ctx, ch, message, session.ChatNormal)
}

func channel(param string) (int, error) {
	n, err := strconv.Atoi(param)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q: %w", param, ErrBadChannel)
	}
	return n, nil
}
