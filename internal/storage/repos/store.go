package repos

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Store struct {
	DB *sql.DB
}

const timeFormat = time.RFC3339Nano

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func parseTS(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var c int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.DB.QueryRowContext(ctx, query).Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

// Stats counts the rows of every persisted collection.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"notifications",
		"inventory_offers",
		"agent_cache",
		"group_cache",
		"current_groups",
		"rlv_rules",
	}
	out := map[string]int{}
	for _, t := range tables {
		c, err := s.Count(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = c
	}
	return out, nil
}

// replaceAll runs del followed by one insert per row inside a single
// transaction.
func (s *Store) replaceAll(ctx context.Context, del string, insert string, rows [][]any) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return err
	}
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, args := range rows {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
