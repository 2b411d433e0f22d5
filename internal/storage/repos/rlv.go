package repos

import (
	"context"

	"github.com/google/uuid"

	"corrade/internal/model"
)

// SaveRLVRules replaces the persisted rule set.
func (s *Store) SaveRLVRules(ctx context.Context, rules []model.RLVRule) error {
	rows := make([][]any, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []any{r.Behaviour, r.Option, r.Param, r.Object.String()})
	}
	return s.replaceAll(ctx, "DELETE FROM rlv_rules",
		"INSERT OR REPLACE INTO rlv_rules(behaviour, option, param, object_id) VALUES (?, ?, ?, ?)", rows)
}

func (s *Store) ListRLVRules(ctx context.Context) ([]model.RLVRule, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT behaviour, option, param, object_id
FROM rlv_rules
ORDER BY object_id, behaviour, option`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RLVRule
	for rows.Next() {
		var (
			r   model.RLVRule
			obj string
		)
		if err := rows.Scan(&r.Behaviour, &r.Option, &r.Param, &obj); err != nil {
			return nil, err
		}
		if r.Object, err = uuid.Parse(obj); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
