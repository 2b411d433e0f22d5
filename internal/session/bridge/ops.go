package bridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"corrade/internal/model"
	"corrade/internal/session"
)

func (c *Client) Self() session.Self {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Client) Subscribe(handler func(session.Event)) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = handler
	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *Client) Say(ctx context.Context, channel int, message string, chatType session.ChatType) error {
	return c.call(ctx, "say", map[string]any{
		"channel": channel,
		"message": message,
		"type":    chatType.String(),
	}, nil)
}

func (c *Client) InstantMessage(ctx context.Context, agent uuid.UUID, message string) error {
	return c.call(ctx, "instant_message", map[string]any{"agent": agent, "message": message}, nil)
}

func (c *Client) GroupMessage(ctx context.Context, group uuid.UUID, message string) error {
	return c.call(ctx, "group_message", map[string]any{"group": group, "message": message}, nil)
}

func (c *Client) AgentName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := c.call(ctx, "agent_name", map[string]any{"id": id}, &name)
	return name, err
}

func (c *Client) AgentID(ctx context.Context, firstName, lastName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := c.call(ctx, "agent_id", map[string]any{"first_name": firstName, "last_name": lastName}, &id)
	return id, err
}

func (c *Client) GroupName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := c.call(ctx, "group_name", map[string]any{"id": id}, &name)
	return name, err
}

func (c *Client) GroupID(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := c.call(ctx, "group_id", map[string]any{"name": name}, &id)
	return id, err
}

func (c *Client) CurrentGroups(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := c.call(ctx, "current_groups", nil, &ids)
	return ids, err
}

// RequestGroupMembers registers onBatch for the stream named by the
// request id. The stream stays registered until the context ends.
func (c *Client) RequestGroupMembers(ctx context.Context, group uuid.UUID, onBatch session.MemberBatch) error {
	id := uuid.NewString()
	c.mu.Lock()
	c.streams[id] = onBatch
	c.mu.Unlock()
	if err := c.callWithID(ctx, id, "group_members", map[string]any{"group": group}, nil); err != nil {
		c.dropStream(id)
		return err
	}
	go func() {
		<-ctx.Done()
		c.dropStream(id)
	}()
	return nil
}

func (c *Client) dropStream(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, id)
}

func (c *Client) ActivateGroup(ctx context.Context, group uuid.UUID) error {
	return c.call(ctx, "activate_group", map[string]any{"group": group}, nil)
}

func (c *Client) Balance(ctx context.Context) (int, error) {
	var balance int
	err := c.call(ctx, "balance", nil, &balance)
	return balance, err
}

func (c *Client) Teleport(ctx context.Context, region string, position model.Vector3) error {
	return c.call(ctx, "teleport", map[string]any{"region": region, "position": position}, nil)
}

func (c *Client) Sit(ctx context.Context, object uuid.UUID) error {
	return c.call(ctx, "sit", map[string]any{"object": object}, nil)
}

func (c *Client) Stand(ctx context.Context) error {
	return c.call(ctx, "stand", nil, nil)
}

func (c *Client) SetRotation(ctx context.Context, radians float64) error {
	return c.call(ctx, "set_rotation", map[string]any{"radians": radians}, nil)
}

func (c *Client) SharedFolder(ctx context.Context) (*session.Folder, error) {
	var f session.Folder
	if err := c.call(ctx, "shared_folder", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) Worn(ctx context.Context) ([]session.Item, error) {
	var items []session.Item
	err := c.call(ctx, "worn", nil, &items)
	return items, err
}

func (c *Client) Wear(ctx context.Context, items []uuid.UUID, replace bool) error {
	return c.call(ctx, "wear", map[string]any{"items": items, "replace": replace}, nil)
}

func (c *Client) Attach(ctx context.Context, item uuid.UUID, point string, replace bool) error {
	return c.call(ctx, "attach", map[string]any{"item": item, "point": point, "replace": replace}, nil)
}

func (c *Client) Detach(ctx context.Context, items []uuid.UUID) error {
	return c.call(ctx, "detach", map[string]any{"items": items}, nil)
}

func (c *Client) ReplyInventoryOffer(ctx context.Context, offer model.InventoryOffer, accept bool) error {
	return c.call(ctx, "reply_inventory_offer", map[string]any{
		"offer":  offer.ID,
		"sender": offer.Sender,
		"accept": accept,
	}, nil)
}

func (c *Client) ReplyDialog(ctx context.Context, dialog session.ScriptDialogEvent, channel int, button string) error {
	return c.call(ctx, "reply_dialog", map[string]any{
		"object":  dialog.ObjectID,
		"channel": channel,
		"button":  button,
	}, nil)
}

func (c *Client) AcceptFriendship(ctx context.Context, agent uuid.UUID, sessionID uuid.UUID) error {
	return c.call(ctx, "accept_friendship", map[string]any{"agent": agent, "session": sessionID}, nil)
}

func (c *Client) AcceptTeleportLure(ctx context.Context, agent uuid.UUID, sessionID uuid.UUID) error {
	return c.call(ctx, "accept_teleport_lure", map[string]any{"agent": agent, "session": sessionID}, nil)
}

func (c *Client) AcceptGroupInvite(ctx context.Context, invite session.GroupInviteEvent) error {
	if invite.SessionID == uuid.Nil {
		return fmt.Errorf("accept_group_invite: missing session")
	}
	return c.call(ctx, "accept_group_invite", map[string]any{
		"group":   invite.GroupID,
		"session": invite.SessionID,
	}, nil)
}
