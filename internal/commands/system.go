package commands

import (
	"context"
	"strings"

	"corrade/internal/auth"
	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/notify"
	"corrade/internal/wire"
)

func systemCommands() []Command {
	return []Command{
		{Name: "version", Run: version},
		{Name: "echo", Permission: model.PermissionSystem, Run: echo},
		{Name: "notify", Permission: model.PermissionNotifications, Run: notifyCommand},
		{Name: "getconfiguration", Permission: model.PermissionSystem, Run: getConfiguration},
		{Name: "setconfiguration", Permission: model.PermissionSystem, Run: setConfiguration},
		{Name: "rlv", Permission: model.PermissionSystem, Run: rlvCommand},
	}
}

func version(_ context.Context, env *Env, _ Request) (map[string]string, error) {
	return csvData(env.Config.Get().Agent.Version), nil
}

func echo(_ context.Context, _ *Env, req Request) (map[string]string, error) {
	return map[string]string{"data": req.Field("message")}, nil
}

func notifyCommand(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	group := req.Group
	action := strings.ToLower(req.Field("action"))

	switch action {
	case "list":
		var out []string
		for _, reg := range env.Registry.List(group.Name) {
			out = append(out, notify.KindName(reg.Kind), reg.URL)
		}
		return csvData(out...), nil
	case "add":
		kinds, err := parseKinds(req.Field("type"))
		if err != nil {
			return nil, err
		}
		if kinds == model.NotificationNone {
			return nil, fail("no notification type provided")
		}
		url := strings.TrimSpace(req.Field("URL"))
		if url == "" {
			return nil, fail("no URL provided")
		}
		for _, k := range kinds.Kinds() {
			if !auth.CanNotify(group, k) {
				return nil, fail("notification not allowed")
			}
		}
		env.Registry.Add(group.Name, kinds, url)
	case "remove":
		kinds, err := parseKinds(req.Field("type"))
		if err != nil {
			return nil, err
		}
		if kinds == model.NotificationNone {
			for _, k := range model.AllNotificationKinds() {
				kinds |= k
			}
		}
		env.Registry.Remove(group.Name, kinds, strings.TrimSpace(req.Field("URL")))
	case "clear":
		env.Registry.Clear(group.Name)
	case "purge":
		env.Registry.Purge(func(name string) bool {
			_, ok := env.Groups.ByName(name)
			return ok
		})
	default:
		return nil, fail("unknown action")
	}

	if env.Store != nil {
		if err := env.Store.SaveRegistrations(ctx, env.Registry.List("")); err != nil {
			return nil, fail("could not save notifications")
		}
	}
	return nil, nil
}

func parseKinds(csv string) (model.NotificationKind, error) {
	kinds, err := model.ParseNotifications(wire.SplitCSV(csv))
	if err != nil {
		return 0, fail("unknown notification type")
	}
	return kinds, nil
}

// getConfiguration answers name,value pairs for the requested fields, or
// the list of field names when none is given.
func getConfiguration(_ context.Context, env *Env, req Request) (map[string]string, error) {
	names := wire.SplitCSV(req.Field("path"))
	if len(names) == 0 {
		return csvData(config.FieldNames()...), nil
	}
	cfg := env.Config.Get()
	var out []string
	for _, name := range names {
		f, ok := config.LookupField(name)
		if !ok {
			return nil, fail("unknown configuration field: %s", name)
		}
		out = append(out, strings.ToLower(strings.TrimSpace(name)), f.Get(&cfg))
	}
	return csvData(out...), nil
}

func setConfiguration(_ context.Context, env *Env, req Request) (map[string]string, error) {
	name := req.Field("path")
	f, ok := config.LookupField(name)
	if !ok {
		return nil, fail("unknown configuration field: %s", name)
	}
	value := req.Field("data")
	if err := env.Config.Update(func(c *config.Config) error { return f.Set(c, value) }); err != nil {
		return nil, fail("invalid value for %s: %v", name, err)
	}
	if env.Logger != nil {
		env.Logger.Info("configuration changed", "field", name, "group", req.Group.Name)
	}
	cfg := env.Config.Get()
	return csvData(strings.ToLower(strings.TrimSpace(name)), f.Get(&cfg)), nil
}

func rlvCommand(_ context.Context, env *Env, req Request) (map[string]string, error) {
	switch strings.ToLower(req.Field("action")) {
	case "enable", "disable":
		on := strings.EqualFold(req.Field("action"), "enable")
		_ = env.Config.Update(func(c *config.Config) error {
			c.RLV.Enabled = on
			return nil
		})
	case "status":
	default:
		return nil, fail("unknown action")
	}
	if env.Config.Get().RLV.Enabled {
		return csvData("True"), nil
	}
	return csvData("False"), nil
}
