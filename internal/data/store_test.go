package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Profiles
// =============================================================================

func TestUpsertProfile(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, err := store.UpsertProfile(ctx, "  Ana@Example.com ", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, "eco", p.Plan)
	assert.Equal(t, StatusInactive, p.SubscriptionStatus)
	assert.Len(t, p.ReferralCode, 8)

	again, err := store.UpsertProfile(ctx, "ana@example.com", "Ana María")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, p.ReferralCode, again.ReferralCode)
	assert.Equal(t, "Ana María", again.Name)

	_, err = store.UpsertProfile(ctx, "   ", "x")
	assert.Error(t, err)
}

func TestProfileLookups(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, err := store.UpsertProfile(ctx, "luis@example.com", "Luis")
	require.NoError(t, err)

	byCode, err := store.GetProfileByReferralCode(ctx, " "+p.ReferralCode+" ")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byCode.ID)

	_, err = store.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	plan, err := store.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "eco", plan)
}

func TestUpdateSubscription(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, err := store.UpsertProfile(ctx, "eva@example.com", "Eva")
	require.NoError(t, err)

	require.NoError(t, store.UpdateSubscription(ctx, p.ID, "cus_123", StatusActive, "pro"))
	got, err := store.GetProfileByStripeCustomer(ctx, "cus_123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "pro", got.Plan)
	assert.Equal(t, StatusActive, got.SubscriptionStatus)

	// Empty customer and plan keep the stored values.
	require.NoError(t, store.UpdateSubscription(ctx, p.ID, "", StatusPastDue, ""))
	got, err = store.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_123", got.StripeCustomerID)
	assert.Equal(t, "pro", got.Plan)
	assert.Equal(t, StatusPastDue, got.SubscriptionStatus)

	require.NoError(t, store.UpdateSubscriptionByCustomer(ctx, "cus_123", StatusCanceled, "eco"))
	got, err = store.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "eco", got.Plan)
	assert.Equal(t, StatusCanceled, got.SubscriptionStatus)

	assert.ErrorIs(t, store.UpdateSubscription(ctx, "missing", "", StatusActive, ""), ErrNotFound)
	assert.ErrorIs(t, store.UpdateSubscriptionByCustomer(ctx, "cus_none", StatusActive, ""), ErrNotFound)
}

// =============================================================================
// Referrals
// =============================================================================

func TestReferrals(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	referrer, err := store.UpsertProfile(ctx, "a@example.com", "A")
	require.NoError(t, err)
	referred, err := store.UpsertProfile(ctx, "b@example.com", "B")
	require.NoError(t, err)

	require.NoError(t, store.ApplyReferral(ctx, referred.ID, referrer.ID))
	assert.ErrorIs(t, store.ApplyReferral(ctx, referred.ID, referrer.ID), ErrAlreadyReferred)
	assert.ErrorIs(t, store.ApplyReferral(ctx, "missing", referrer.ID), ErrNotFound)

	n, err := store.CountReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetProfile(ctx, referred.ID)
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, got.ReferredBy)

	rewarded, err := store.RewardReferrer(ctx, referred.ID, 100)
	require.NoError(t, err)
	assert.True(t, rewarded)

	rewarded, err = store.RewardReferrer(ctx, referred.ID, 100)
	require.NoError(t, err)
	assert.False(t, rewarded, "reward applies once")

	got, err = store.GetProfile(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.ReferralBalanceCents)
}

// =============================================================================
// Notes and templates
// =============================================================================

func TestNotesCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	older := &Note{UserID: "u1", Title: "compra", Content: "leche", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, store.CreateNote(ctx, older))
	newer := &Note{UserID: "u1", Title: "ideas", Tags: []string{"trabajo"}}
	require.NoError(t, store.CreateNote(ctx, newer))
	require.NoError(t, store.CreateNote(ctx, &Note{UserID: "u2", Title: "otro"}))

	notes, err := store.ListNotes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, newer.ID, notes[0].ID)
	assert.Equal(t, []string{"trabajo"}, notes[0].Tags)
	assert.Equal(t, []string{}, notes[1].Tags)

	pinned := true
	title := "compra semanal"
	updated, err := store.UpdateNote(ctx, "u1", older.ID, NoteUpdate{Title: &title, IsPinned: &pinned})
	require.NoError(t, err)
	assert.Equal(t, "compra semanal", updated.Title)
	assert.Equal(t, "leche", updated.Content)
	assert.True(t, updated.IsPinned)

	notes, err = store.ListNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, notes[0].ID, "pinned notes first")

	_, err = store.UpdateNote(ctx, "u2", older.ID, NoteUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeleteNote(ctx, "u1", older.ID))
	assert.ErrorIs(t, store.DeleteNote(ctx, "u1", older.ID), ErrNotFound)
	_, err = store.GetNote(ctx, "u1", older.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplates(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.CreateTemplate(ctx, &Template{UserID: "u1", Name: "saludo", Content: "Hola", CreatedAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, store.CreateTemplate(ctx, &Template{UserID: "u1", Name: "despedida", Content: "Adiós"}))
	assert.Error(t, store.CreateTemplate(ctx, &Template{Name: "sin usuario"}))

	list, err := store.ListTemplates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "despedida", list[0].Name)

	empty, err := store.ListTemplates(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// =============================================================================
// Usage counters and tokens
// =============================================================================

func TestUsageCounters(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := store.IncrementUsage(ctx, "u1", "2026-03-14")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err := store.IncrementUsage(ctx, "u1", "2026-03-13")
	require.NoError(t, err)

	n, err := store.GetUsage(ctx, "u1", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.GetUsage(ctx, "u2", "2026-03-14")
	require.NoError(t, err)
	assert.Zero(t, n)

	pruned, err := store.PruneUsage(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestTokens(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.GetToken(ctx, "u1", "google")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveToken(ctx, "u1", "google", []byte("v1")))
	require.NoError(t, store.SaveToken(ctx, "u1", "google", []byte("v2")))

	got, err := store.GetToken(ctx, "u1", "google")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.DeleteToken(ctx, "u1", "google"))
	_, err = store.GetToken(ctx, "u1", "google")
	assert.ErrorIs(t, err, ErrNotFound)
}
