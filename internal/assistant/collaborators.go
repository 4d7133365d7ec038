package assistant

import (
	"context"

	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/dispatch"
	"github.com/normanking/alcance/internal/google"
)

// ContentStore persists notes and templates.
type ContentStore interface {
	CreateNote(ctx context.Context, n *data.Note) error
	CreateTemplate(ctx context.Context, t *data.Template) error
}

// StoreNotes adapts a ContentStore to dispatch.NoteStore.
type StoreNotes struct {
	Store ContentStore
}

// CreateNote implements dispatch.NoteStore.
func (s StoreNotes) CreateNote(ctx context.Context, userID string, n dispatch.Note) (string, error) {
	row := &data.Note{UserID: userID, Title: n.Title, Content: n.Content, Tags: n.Tags}
	if err := s.Store.CreateNote(ctx, row); err != nil {
		return "", err
	}
	return row.ID, nil
}

// StoreTemplates adapts a ContentStore to dispatch.TemplateStore.
type StoreTemplates struct {
	Store ContentStore
}

// CreateTemplate implements dispatch.TemplateStore.
func (s StoreTemplates) CreateTemplate(ctx context.Context, userID string, t dispatch.Template) (string, error) {
	row := &data.Template{UserID: userID, Name: t.Name, Content: t.Content}
	if err := s.Store.CreateTemplate(ctx, row); err != nil {
		return "", err
	}
	return row.ID, nil
}

// Resolver combines the local store with the user's Google workspace.
type Resolver struct {
	store  ContentStore
	google *google.Resolver
}

// NewResolver creates a resolver. Either argument may be nil.
func NewResolver(store ContentStore, g *google.Resolver) *Resolver {
	return &Resolver{store: store, google: g}
}

// Services implements ServiceResolver.
func (r *Resolver) Services(ctx context.Context, userID string) dispatch.Services {
	var svc dispatch.Services
	if ws := r.google.Workspace(ctx, userID); ws != nil {
		svc = ws.Services()
	}
	if r.store != nil {
		svc.Notes = StoreNotes{Store: r.store}
		svc.Templates = StoreTemplates{Store: r.store}
	}
	return svc
}
