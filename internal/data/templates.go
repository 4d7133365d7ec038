package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Template is a reusable text snippet saved by a user.
type Template struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTemplate inserts a template, assigning ID and timestamp when empty.
func (s *Store) CreateTemplate(ctx context.Context, t *Template) error {
	if t.UserID == "" {
		return fmt.Errorf("template user ID cannot be empty")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, user_id, name, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Content, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// ListTemplates returns a user's templates, newest first.
func (s *Store) ListTemplates(ctx context.Context, userID string) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, content, created_at FROM templates
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		var t Template
		var createdAt string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
