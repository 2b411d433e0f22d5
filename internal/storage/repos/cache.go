package repos

import (
	"context"

	"github.com/google/uuid"
)

// CachedAgent is one agent name resolution.
type CachedAgent struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
}

// CachedGroup is one group name resolution.
type CachedGroup struct {
	ID   uuid.UUID
	Name string
}

type CacheSnapshot struct {
	Agents        []CachedAgent
	Groups        []CachedGroup
	CurrentGroups []uuid.UUID
}

// SaveCaches replaces all three resolution caches in one transaction.
func (s *Store) SaveCaches(ctx context.Context, snap CacheSnapshot) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"agent_cache", "group_cache", "current_groups"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	for _, a := range snap.Agents {
		if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO agent_cache(id, first_name, last_name) VALUES (?, ?, ?)",
			a.ID.String(), a.FirstName, a.LastName); err != nil {
			return err
		}
	}
	for _, g := range snap.Groups {
		if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO group_cache(id, name) VALUES (?, ?)",
			g.ID.String(), g.Name); err != nil {
			return err
		}
	}
	for _, id := range snap.CurrentGroups {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO current_groups(id) VALUES (?)", id.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) LoadCaches(ctx context.Context) (CacheSnapshot, error) {
	var snap CacheSnapshot

	rows, err := s.DB.QueryContext(ctx, "SELECT id, first_name, last_name FROM agent_cache")
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var (
			id string
			a  CachedAgent
		)
		if err := rows.Scan(&id, &a.FirstName, &a.LastName); err != nil {
			rows.Close()
			return snap, err
		}
		if a.ID, err = uuid.Parse(id); err == nil {
			snap.Agents = append(snap.Agents, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = s.DB.QueryContext(ctx, "SELECT id, name FROM group_cache")
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var (
			id string
			g  CachedGroup
		)
		if err := rows.Scan(&id, &g.Name); err != nil {
			rows.Close()
			return snap, err
		}
		if g.ID, err = uuid.Parse(id); err == nil {
			snap.Groups = append(snap.Groups, g)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = s.DB.QueryContext(ctx, "SELECT id FROM current_groups")
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return snap, err
		}
		if gid, err := uuid.Parse(id); err == nil {
			snap.CurrentGroups = append(snap.CurrentGroups, gid)
		}
	}
	return snap, rows.Err()
}
