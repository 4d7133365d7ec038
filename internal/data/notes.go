package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════════
// NOTES
// ═══════════════════════════════════════════════════════════════════════════════

// Note is a user's note.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Tags      []string  `json:"tags"`
	IsPinned  bool      `json:"is_pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteUpdate holds the fields to change; nil fields are left untouched.
type NoteUpdate struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	AudioURL *string   `json:"audio_url,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	IsPinned *bool     `json:"is_pinned,omitempty"`
}

const noteColumns = `id, user_id, title, content, audio_url, tags, is_pinned, created_at, updated_at`

func scanNote(row rowScanner) (*Note, error) {
	var n Note
	var audio sql.NullString
	var tagsJSON, createdAt, updatedAt string
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &audio, &tagsJSON, &n.IsPinned, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	n.AudioURL = audio.String
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	return &n, nil
}

// CreateNote inserts a note. ID and timestamps are assigned when empty.
func (s *Store) CreateNote(ctx context.Context, n *Note) error {
	if n.UserID == "" {
		return fmt.Errorf("note user ID cannot be empty")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Content, nullString(n.AudioURL), string(tagsJSON),
		n.IsPinned, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// ListNotes returns a user's notes, pinned first, newest first.
func (s *Store) ListNotes(ctx context.Context, userID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ?
		ORDER BY is_pinned DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// GetNote retrieves one of a user's notes.
func (s *Store) GetNote(ctx context.Context, userID, id string) (*Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query note: %w", err)
	}
	return n, nil
}

// UpdateNote applies u to one of a user's notes and returns the result.
func (s *Store) UpdateNote(ctx context.Context, userID, id string, u NoteUpdate) (*Note, error) {
	var sets []string
	var args []any
	if u.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *u.Title)
	}
	if u.Content != nil {
		sets, args = append(sets, "content = ?"), append(args, *u.Content)
	}
	if u.AudioURL != nil {
		sets, args = append(sets, "audio_url = ?"), append(args, nullString(*u.AudioURL))
	}
	if u.Tags != nil {
		tags := *u.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		sets, args = append(sets, "tags = ?"), append(args, string(tagsJSON))
	}
	if u.IsPinned != nil {
		sets, args = append(sets, "is_pinned = ?"), append(args, *u.IsPinned)
	}
	if len(sets) == 0 {
		return s.GetNote(ctx, userID, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	if err := expectRow(res); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, userID, id)
}

// DeleteNote removes one of a user's notes.
func (s *Store) DeleteNote(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return expectRow(res)
}
