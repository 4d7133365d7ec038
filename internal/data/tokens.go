package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveToken stores a sealed OAuth token for a user and provider.
func (s *Store) SaveToken(ctx context.Context, userID, provider string, sealed []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (user_id, provider, sealed, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
		userID, provider, sealed, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// GetToken returns the sealed token for a user and provider.
func (s *Store) GetToken(ctx context.Context, userID, provider string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT sealed FROM oauth_tokens WHERE user_id = ? AND provider = ?`, userID, provider).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query token: %w", err)
	}
	return sealed, nil
}

// DeleteToken removes the stored token for a user and provider.
func (s *Store) DeleteToken(ctx context.Context, userID, provider string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = ? AND provider = ?`, userID, provider); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
