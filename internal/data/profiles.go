package data

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ═══════════════════════════════════════════════════════════════════════════════

// Subscription statuses.
const (
	StatusInactive = "inactive"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Profile is a user account with its subscription and referral state.
type Profile struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	Name                 string    `json:"name"`
	Plan                 string    `json:"plan"`
	SubscriptionStatus   string    `json:"subscription_status"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	ReferralCode         string    `json:"referral_code"`
	ReferralBalanceCents int64     `json:"referral_balance_cents"`
	ReferredBy           string    `json:"referred_by,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

const profileColumns = `id, email, name, plan, subscription_status, stripe_customer_id,
	referral_code, referral_balance_cents, referred_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var customer, referredBy sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Plan, &p.SubscriptionStatus, &customer,
		&p.ReferralCode, &p.ReferralBalanceCents, &referredBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.StripeCustomerID = customer.String
	p.ReferredBy = referredBy.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpsertProfile creates the profile for email on first sign-in, or refreshes
// its display name. The referral code is assigned once at creation.
func (s *Store) UpsertProfile(ctx context.Context, email, name string) (*Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("profile email cannot be empty")
	}

	now := formatTime(time.Now())
	existing, err := s.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		if name != "" && name != existing.Name {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE profiles SET name = ?, updated_at = ? WHERE id = ?`,
				name, now, existing.ID); err != nil {
				return nil, fmt.Errorf("update profile name: %w", err)
			}
		}
		return s.GetProfile(ctx, existing.ID)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	id := uuid.NewString()
	for attempt := 0; ; attempt++ {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO profiles (id, email, name, plan, subscription_status, referral_code, created_at, updated_at)
			VALUES (?, ?, ?, 'eco', ?, ?, ?, ?)`,
			id, email, name, StatusInactive, newReferralCode(), now, now)
		if err == nil {
			break
		}
		// Retry only on a referral code collision.
		if attempt >= 3 || !strings.Contains(err.Error(), "referral_code") {
			return nil, fmt.Errorf("insert profile: %w", err)
		}
	}
	return s.GetProfile(ctx, id)
}

// GetProfile retrieves a profile by ID.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return s.queryProfile(ctx, `WHERE id = ?`, id)
}

// GetProfileByEmail retrieves a profile by email.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.queryProfile(ctx, `WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

// GetProfileByReferralCode retrieves the owner of a referral code.
func (s *Store) GetProfileByReferralCode(ctx context.Context, code string) (*Profile, error) {
	return s.queryProfile(ctx, `WHERE referral_code = ?`, strings.ToUpper(strings.TrimSpace(code)))
}

// GetProfileByStripeCustomer retrieves the profile linked to a Stripe customer.
func (s *Store) GetProfileByStripeCustomer(ctx context.Context, customerID string) (*Profile, error) {
	return s.queryProfile(ctx, `WHERE stripe_customer_id = ?`, customerID)
}

func (s *Store) queryProfile(ctx context.Context, where string, arg any) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles `+where, arg))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// GetPlan returns the plan name of a profile.
func (s *Store) GetPlan(ctx context.Context, userID string) (string, error) {
	var plan string
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM profiles WHERE id = ?`, userID).Scan(&plan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query plan: %w", err)
	}
	return plan, nil
}

// UpdateSubscription links a Stripe customer to a profile and records the
// subscription state. An empty plan leaves the plan unchanged.
func (s *Store) UpdateSubscription(ctx context.Context, userID, customerID, status, plan string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET stripe_customer_id = COALESCE(?, stripe_customer_id),
		    subscription_status = ?,
		    plan = COALESCE(NULLIF(?, ''), plan),
		    updated_at = ?
		WHERE id = ?`,
		nullString(customerID), status, plan, formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return expectRow(res)
}

// UpdateSubscriptionByCustomer records the subscription state for the
// profile linked to customerID. An empty plan leaves the plan unchanged.
func (s *Store) UpdateSubscriptionByCustomer(ctx context.Context, customerID, status, plan string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET subscription_status = ?,
		    plan = COALESCE(NULLIF(?, ''), plan),
		    updated_at = ?
		WHERE stripe_customer_id = ?`,
		status, plan, formatTime(time.Now()), customerID)
	if err != nil {
		return fmt.Errorf("update subscription by customer: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// referralAlphabet omits characters that are easy to misread.
const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newReferralCode() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	for i := range b {
		b[i] = referralAlphabet[int(b[i])%len(referralAlphabet)]
	}
	return string(b)
}
