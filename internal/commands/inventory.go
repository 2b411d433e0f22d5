package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/model"
)

func inventoryCommands() []Command {
	return []Command{
		{Name: "getinventoryoffers", Permission: model.PermissionInventory, Run: getInventoryOffers},
		{Name: "replytoinventoryoffer", Permission: model.PermissionInventory, Run: replyToInventoryOffer},
		{Name: "replytodialog", Permission: model.PermissionInteract, Run: replyToDialog},
		{Name: "getviewereffects", Permission: model.PermissionInteract, Run: getViewerEffects},
	}
}

// getInventoryOffers lists pending offers as name,session,item,asset
// quadruples.
func getInventoryOffers(_ context.Context, env *Env, _ Request) (map[string]string, error) {
	var out []string
	for _, o := range env.Offers.Pending() {
		out = append(out, o.SenderName, o.ID.String(), o.ItemName, o.AssetType)
	}
	return csvData(out...), nil
}

func replyToInventoryOffer(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	id, err := uuid.Parse(req.Field("session"))
	if err != nil {
		return nil, fail("invalid session UUID")
	}
	var accept bool
	switch strings.ToLower(req.Field("action")) {
	case "accept":
		accept = true
	case "decline":
	default:
		return nil, fail("unknown action")
	}
	if err := env.Offers.Decide(ctx, id, accept); err != nil {
		return nil, fail("inventory offer not found")
	}
	return nil, nil
}

func replyToDialog(ctx context.Context, env *Env, req Request) (map[string]string, error) {
	id, err := uuid.Parse(req.Field("dialog"))
	if err != nil {
		return nil, fail("invalid dialog UUID")
	}
	dialog, ok := env.Dialogs.Dialog(id)
	if !ok {
		return nil, fail("dialog not found")
	}
	button := req.Field("button")
	if !containsFold(dialog.Buttons, button) {
		return nil, fail("dialog button not found")
	}
	channel := dialog.Channel
	if v := req.Field("channel"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fail("invalid channel")
		}
		channel = n
	}
	ctx, cancel := withTimeout(ctx, env)
	defer cancel()
	if err := env.Session.ReplyDialog(ctx, dialog, channel, button); err != nil {
		return nil, err
	}
	env.Dialogs.Forget(id)
	return nil, nil
}

// getViewerEffects lists tracked effects as effect,id,source,target,position
// tuples.
func getViewerEffects(_ context.Context, env *Env, _ Request) (map[string]string, error) {
	var out []string
	for _, fx := range env.Effects.Active() {
		out = append(out, fx.Effect, fx.EffectID.String(), fx.SourceID.String(), fx.TargetID.String(), fx.Position.String())
	}
	return csvData(out...), nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
