package repos

import (
	"context"

	"corrade/internal/model"
)

// SaveRegistrations replaces the persisted registration set.
func (s *Store) SaveRegistrations(ctx context.Context, regs []model.Registration) error {
	now := nowUTC().Format(timeFormat)
	rows := make([][]any, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, []any{r.Group, r.Kind.String(), r.URL, now})
	}
	return s.replaceAll(ctx, "DELETE FROM notifications",
		"INSERT OR IGNORE INTO notifications(group_name, kind, url, created_at) VALUES (?, ?, ?, ?)", rows)
}

// ListRegistrations loads every registration. Rows naming a kind that no
// longer exists are skipped.
func (s *Store) ListRegistrations(ctx context.Context) ([]model.Registration, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT group_name, kind, url
FROM notifications
ORDER BY group_name, kind, url`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		var group, kind, url string
		if err := rows.Scan(&group, &kind, &url); err != nil {
			return nil, err
		}
		k, err := model.ParseNotifications([]string{kind})
		if err != nil || k == 0 {
			continue
		}
		out = append(out, model.Registration{Group: group, Kind: k, URL: url})
	}
	return out, rows.Err()
}
