package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IncrementUsage atomically adds one to the user's counter for day and
// returns the new value.
func (s *Store) IncrementUsage(ctx context.Context, userID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (user_id, day, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1
		RETURNING count`, userID, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}

// GetUsage returns the user's counter for day, zero when absent.
func (s *Store) GetUsage(ctx context.Context, userID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE user_id = ? AND day = ?`, userID, day).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query usage: %w", err)
	}
	return n, nil
}

// PruneUsage deletes counters for days before the given YYYY-MM-DD day.
func (s *Store) PruneUsage(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_counters WHERE day < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return res.RowsAffected()
}
