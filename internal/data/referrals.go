package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyReferred is returned when a profile has already redeemed a code.
var ErrAlreadyReferred = errors.New("profile already referred")

// CountReferrals returns how many profiles redeemed referrerID's code.
func (s *Store) CountReferrals(ctx context.Context, referrerID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = ?`, referrerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

// ApplyReferral marks referredID as referred by referrerID and records the
// referral in one transaction.
func (s *Store) ApplyReferral(ctx context.Context, referredID, referrerID string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		res, err := tx.ExecContext(ctx, `
			UPDATE profiles SET referred_by = ?, updated_at = ?
			WHERE id = ? AND (referred_by IS NULL OR referred_by = '')`,
			referrerID, now, referredID)
		if err != nil {
			return fmt.Errorf("set referred_by: %w", err)
		}
		if err := expectRow(res); err != nil {
			var exists int
			if qerr := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE id = ?`, referredID).Scan(&exists); qerr != nil {
				return fmt.Errorf("check profile: %w", qerr)
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrAlreadyReferred
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO referrals (id, referrer_id, referred_id, rewarded, created_at)
			VALUES (?, ?, ?, 0, ?)`,
			uuid.NewString(), referrerID, referredID, now); err != nil {
			return fmt.Errorf("insert referral: %w", err)
		}
		return nil
	})
}

// RewardReferrer credits the referrer of referredID once. It reports whether
// a credit was applied.
func (s *Store) RewardReferrer(ctx context.Context, referredID string, cents int64) (bool, error) {
	rewarded := false
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var referralID, referrerID string
		err := tx.QueryRowContext(ctx, `
			SELECT id, referrer_id FROM referrals
			WHERE referred_id = ? AND rewarded = 0`, referredID).Scan(&referralID, &referrerID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("query referral: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE referrals SET rewarded = 1 WHERE id = ?`, referralID); err != nil {
			return fmt.Errorf("mark referral rewarded: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET referral_balance_cents = referral_balance_cents + ?, updated_at = ?
			WHERE id = ?`,
			cents, formatTime(time.Now()), referrerID); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}
		rewarded = true
		return nil
	})
	return rewarded, err
}
