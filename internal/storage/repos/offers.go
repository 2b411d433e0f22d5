package repos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"corrade/internal/model"
)

func (s *Store) UpsertOffer(ctx context.Context, o model.InventoryOffer) error {
	var resolved any
	if o.State != model.OfferPending {
		resolved = nowUTC().Format(timeFormat)
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO inventory_offers(id, sender_id, sender_name, item_name, asset_type, state, received_at, resolved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET state = excluded.state, resolved_at = excluded.resolved_at`,
		o.ID.String(), o.Sender.String(), o.SenderName, o.ItemName, o.AssetType,
		string(o.State), o.Received.UTC().Format(timeFormat), resolved)
	return err
}

// ListOffers returns offers in the given state, oldest first. An empty
// state lists all offers.
func (s *Store) ListOffers(ctx context.Context, state model.OfferState) ([]model.InventoryOffer, error) {
	query := `
SELECT id, sender_id, sender_name, item_name, asset_type, state, received_at
FROM inventory_offers`
	var args []any
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY received_at ASC"
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InventoryOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeclinePending marks every pending offer declined and returns them.
func (s *Store) DeclinePending(ctx context.Context) ([]model.InventoryOffer, error) {
	pending, err := s.ListOffers(ctx, model.OfferPending)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	if _, err := s.DB.ExecContext(ctx, `
UPDATE inventory_offers SET state = ?, resolved_at = ? WHERE state = ?`,
		string(model.OfferDeclined), nowUTC().Format(timeFormat), string(model.OfferPending)); err != nil {
		return nil, err
	}
	for i := range pending {
		pending[i].State = model.OfferDeclined
	}
	return pending, nil
}

func scanOffer(rows *sql.Rows) (model.InventoryOffer, error) {
	var (
		o                 model.InventoryOffer
		id, sender, state string
		received          string
	)
	if err := rows.Scan(&id, &sender, &o.SenderName, &o.ItemName, &o.AssetType, &state, &received); err != nil {
		return model.InventoryOffer{}, err
	}
	o.ID, _ = uuid.Parse(id)
	o.Sender, _ = uuid.Parse(sender)
	o.State = model.OfferState(state)
	o.Received = parseTS(received)
	return o, nil
}
