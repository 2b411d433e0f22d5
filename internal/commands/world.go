package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/session"
)

func worldCommands() []Command {
	return []Command{
		{Name: "tell", Permission: model.PermissionTalk, Run: tell},
		{Name: "getbalance", Permission: model.PermissionEconomy, Run: getBalance},
		{Name: "getmembers", Permission: model.PermissionGroup, Run: getMembers},
		{Name: "getcurrentgroups", Permission: model.PermissionGroup, Run: getCurrentGroups},
		{Name: "activate", Permission: model.PermissionGroup, Run: activate},
		{Name: "teleport", Permission: model.PermissionMovement, Run: teleport},
		{Name: "sit", Permission: model.PermissionMovement, Run: sit},
		{Name: "stand", Permission: model.PermissionMovement, Run: stand},
	}
}

func tell(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	message := req.Field("message")
	if message == "" {
		return nil, fail("empty message provided")
	}
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()

	switch strings.ToLower(req.Field("entity")) {
	case "local":
		channel := 0
		if v := req.Field("channel"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fail("invalid channel")
			}
			channel = n
		}
		chatType := session.ChatNormal
		if v := req.Field("type"); v != "" {
			t, ok := session.ParseChatType(v)
			if !ok || (t != session.ChatNormal && t != session.ChatWhisper && t != session.ChatShout) {
				return nil, fail("invalid chat type")
			}
			chatType = t
		}
		return nil, env.Session.Say(ctx, channel, message, chatType)
	case "avatar":
		agent, err := agentFromRequest(ctx, env, req)
		if err != nil {
			return nil, err
		}
		return nil, env.Session.InstantMessage(ctx, agent, message)
	case "group":
		ok, err := env.Resolver.InCurrentGroups(ctx, req.Group.UUID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fail("not in group")
		}
		return nil, env.Session.GroupMessage(ctx, req.Group.UUID, message)
	default:
		return nil, fail("unknown entity")
	}
}

// agentFromRequest resolves the agent field, or firstname and lastname.
func agentFromRequest(ctx context.Context, env *Env, req Request) (uuid.UUID, error) {
	if v := req.Field("agent"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, fail("invalid agent UUID")
		}
		return id, nil
	}
	first, last := req.Field("firstname"), req.Field("lastname")
	if first == "" || last == "" {
		return uuid.Nil, fail("no agent provided")
	}
	id, err := env.Resolver.AgentID(ctx, first, last)
	if err != nil {
		return uuid.Nil, fail("agent not found")
	}
	return id, nil
}

func getBalance(ctx context.Context, env *Env, _ Request) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	balance, err := env.Session.Balance(ctx)
	if err != nil {
		return nil, err
	}
	return csvData(strconv.Itoa(balance)), nil
}

func getMembers(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	group, err := targetGroup(ctx, env, req)
	if err != nil {
		return nil, err
	}
	members, err := session.CollectGroupMembers(ctx, env.Session, group, config.DataTimeout(env.Config.Get()))
	if err != nil {
		return nil, err
	}
	return csvData(ids(members)...), nil
}

func getCurrentGroups(ctx context.Context, env *Env, _ Request) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	groups, err := env.Resolver.CurrentGroups(ctx)
	if err != nil {
		return nil, err
	}
	return csvData(ids(groups)...), nil
}

func activate(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	group, err := targetGroup(ctx, env, req)
	if err != nil {
		return nil, err
	}
	return nil, env.Session.ActivateGroup(ctx, group)
}

// targetGroup is the group named by the target field, defaulting to the
// command's own group. The agent must be a member.
func targetGroup(ctx context.Context, env *Env, req Request) (uuid.UUID, error) {
	id := req.Group.UUID
	if v := strings.TrimSpace(req.Field("target")); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			if parsed, err = env.Resolver.GroupID(ctx, v); err != nil {
				return uuid.Nil, fail("group not found")
			}
		}
		id = parsed
	}
	ok, err := env.Resolver.InCurrentGroups(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, fail("not in group")
	}
	return id, nil
}

func teleport(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	region := strings.TrimSpace(req.Field("region"))
	if region == "" {
		return nil, fail("no region specified")
	}
	pos := model.Vector3{X: 128, Y: 128, Z: 0}
	if v := req.Field("position"); v != "" {
		p, err := model.ParseVector3(v)
		if err != nil {
			return nil, fail("invalid position")
		}
		pos = p
	}
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	if err := env.Session.Teleport(ctx, region, pos); err != nil {
		return nil, err
	}
	return nil, nil
}

func sit(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	item, err := uuid.Parse(req.Field("item"))
	if err != nil {
		return nil, fail("invalid item UUID")
	}
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	if err := env.Session.Sit(ctx, item); err != nil {
		return nil, err
	}
	return nil, nil
}

func stand(ctx context.Context, env *Env, _ Request) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	return nil, env.Session.Stand(ctx)
}
