// Package referral exposes referral codes and redemption.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/data"
)

var (
	// ErrInvalidCode means no profile owns the code.
	ErrInvalidCode = errors.New("invalid referral code")
	// ErrSelfReferral means the caller tried to redeem their own code.
	ErrSelfReferral = errors.New("cannot refer yourself")
	// ErrAlreadyReferred means the caller already redeemed a code.
	ErrAlreadyReferred = errors.New("already referred")
)

// Store is the persistence referrals need.
type Store interface {
	GetProfile(ctx context.Context, id string) (*data.Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (*data.Profile, error)
	CountReferrals(ctx context.Context, referrerID string) (int, error)
	ApplyReferral(ctx context.Context, referredID, referrerID string) error
}

// Summary is a user's referral state.
type Summary struct {
	Code       string `json:"code"`
	Balance    int64  `json:"balance"`
	Count      int    `json:"count"`
	ReferredBy string `json:"referred_by,omitempty"`
}

// Service implements referral operations over a Store.
type Service struct {
	store Store
}

// NewService creates a referral service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Summary returns the referral state of userID.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	n, err := s.store.CountReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Code:       p.ReferralCode,
		Balance:    p.ReferralBalanceCents,
		Count:      n,
		ReferredBy: p.ReferredBy,
	}, nil
}

// Redeem records that userID was referred by the owner of code.
func (s *Service) Redeem(ctx context.Context, userID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ErrInvalidCode
	}
	referrer, err := s.store.GetProfileByReferralCode(ctx, code)
	if errors.Is(err, data.ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("lookup referral code: %w", err)
	}
	if referrer.ID == userID {
		return ErrSelfReferral
	}

	switch err := s.store.ApplyReferral(ctx, userID, referrer.ID); {
	case errors.Is(err, data.ErrAlreadyReferred):
		return ErrAlreadyReferred
	case err != nil:
		return fmt.Errorf("apply referral: %w", err)
	}
	log.Info().Str("user", userID).Str("referrer", referrer.ID).Msg("referral redeemed")
	return nil
}
