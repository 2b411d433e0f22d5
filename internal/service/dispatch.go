package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/commands"
	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/wire"
)

// Origin names the transport a command arrived on.
type Origin string

const (
	OriginChat Origin = "chat"
	OriginIM   Origin = "im"
	OriginHTTP Origin = "http"
	OriginMCP  Origin = "mcp"
)

const censored = "*****"

// Request is one raw command as received from a transport.
type Request struct {
	Message string
	// Sender is a display name, or an object UUID when the session is set
	// to report objects by key.
	Sender     string
	Identifier string
	Origin     Origin
}

// Dispatch authenticates, authorizes and runs one command. It returns nil
// whenever the request is dropped silently: no group, unknown group, bad
// password, unresolvable sender, or the group's worker ceiling reached.
// When the request names a callback the encoded result is also queued for
// delivery to it.
func (a *App) Dispatch(ctx context.Context, req Request) map[string]string {
	cfg := a.Config.Get()
	log := a.Logger.With("origin", string(req.Origin), "sender", req.Sender)

	if req.Origin == OriginChat || req.Origin == OriginIM {
		if !a.senders.Allow(req.Identifier + "|" + req.Sender) {
			log.Debug("sender rate limited")
			return nil
		}
	}

	raw := wire.Decode(req.Message)
	groupValue, ok := raw["group"]
	if !ok {
		return nil
	}
	group, ok := a.resolveGroup(ctx, a.Pipeline.Decode(groupValue))
	if !ok {
		log.Debug("unknown group")
		return nil
	}
	log = log.With("group", group.Name)

	fields := wire.Unescape(raw, a.Pipeline)
	fields["group"] = group.Name
	password, ok := fields["password"]
	if !ok {
		return nil
	}
	if err := a.Groups.Authenticate(group.Name, password); err != nil {
		log.Warn("access denied")
		return nil
	}
	fields["password"] = censored

	sender := req.Sender
	if cfg.Session.SenderIsObjectUUID {
		if id, err := uuid.Parse(sender); err == nil {
			name, err := a.Resolver.AgentName(ctx, id)
			if err != nil {
				log.Warn("agent not found", "error", err)
				return nil
			}
			sender = name
		}
	}

	log.Info("command", "line", wire.Encode(fields))

	if !a.acquireWorker(group) {
		log.Warn("workers exceeded", "workers", group.Workers)
		return nil
	}
	defer a.releaseWorker(group)

	name := strings.ToLower(fields["command"])
	result, outcome := a.Commands.Execute(ctx, a.env, commands.Request{
		Group:      group,
		Fields:     fields,
		Sender:     sender,
		Identifier: req.Identifier,
	})
	a.Metrics.Command(name, outcome)
	if name == "setconfiguration" && outcome == commands.OutcomeOK {
		a.applyLimits()
	}

	if cb := fields["callback"]; cb != "" {
		if !a.Callbacks.TryEnqueue(cb, a.EncodeResult(result)) {
			log.Debug("callback queue full, dropping", "url", cb)
		}
	}
	return result
}

// EncodeResult escapes and encodes a command result for the wire.
func (a *App) EncodeResult(result map[string]string) string {
	if result == nil {
		return ""
	}
	return wire.Encode(wire.Escape(result, a.Pipeline))
}

// resolveGroup accepts a configured group name or UUID. A name the
// configuration does not know is looked up through the session so that a
// group's in-world name can differ in case or spacing.
func (a *App) resolveGroup(ctx context.Context, value string) (model.Group, bool) {
	if id, err := uuid.Parse(value); err == nil {
		return a.Groups.ByID(id)
	}
	if g, ok := a.Groups.ByName(value); ok {
		return g, true
	}
	lookup, cancel := context.WithTimeout(ctx, config.ServicesTimeout(a.Config.Get()))
	defer cancel()
	id, err := a.Resolver.GroupID(lookup, value)
	if err != nil {
		return model.Group{}, false
	}
	return a.Groups.ByID(id)
}

func (a *App) acquireWorker(group model.Group) bool {
	key := strings.ToLower(group.Name)
	a.workersMu.Lock()
	defer a.workersMu.Unlock()
	if a.workers[key] >= group.Workers {
		return false
	}
	a.workers[key]++
	return true
}

func (a *App) releaseWorker(group model.Group) {
	key := strings.ToLower(group.Name)
	a.workersMu.Lock()
	defer a.workersMu.Unlock()
	if a.workers[key] <= 1 {
		delete(a.workers, key)
		return
	}
	a.workers[key]--
}

// WorkerCount is the number of commands currently running for group.
func (a *App) WorkerCount(group string) int {
	a.workersMu.Lock()
	defer a.workersMu.Unlock()
	return a.workers[strings.ToLower(group)]
}
