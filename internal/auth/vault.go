package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/oauth2"

	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/google"
	"github.com/normanking/alcance/internal/logging"
)

// GoogleProvider is the provider key of stored Google tokens.
const GoogleProvider = "google"

// ErrSealedToken means a stored token could not be opened with the key.
var ErrSealedToken = errors.New("sealed token cannot be opened")

// TokenStore persists sealed tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, userID, provider string, sealed []byte) error
	GetToken(ctx context.Context, userID, provider string) ([]byte, error)
	DeleteToken(ctx context.Context, userID, provider string) error
}

// Vault seals OAuth tokens with secretbox before they reach the store.
type Vault struct {
	store TokenStore
	key   [32]byte
	oauth *oauth2.Config
}

// ParseKey decodes a 32-byte hex key. An empty hex string derives the key
// from fallback.
func ParseKey(hexKey, fallback string) ([32]byte, error) {
	var key [32]byte
	if hexKey == "" {
		if fallback == "" {
			return key, fmt.Errorf("token key and session secret are both empty")
		}
		return sha256.Sum256([]byte("alcance-token-key:" + fallback)), nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, fmt.Errorf("decode token key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("token key must be %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// NewVault creates a vault. oauthCfg refreshes expired tokens.
func NewVault(store TokenStore, key [32]byte, oauthCfg *oauth2.Config) *Vault {
	return &Vault{store: store, key: key, oauth: oauthCfg}
}

// Save seals and stores tok for userID.
func (v *Vault) Save(ctx context.Context, userID string, tok *oauth2.Token) error {
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &v.key)
	return v.store.SaveToken(ctx, userID, GoogleProvider, sealed)
}

// Load opens the stored token for userID. A missing token wraps
// google.ErrNotConnected.
func (v *Vault) Load(ctx context.Context, userID string) (*oauth2.Token, error) {
	sealed, err := v.store.GetToken(ctx, userID, GoogleProvider)
	if errors.Is(err, data.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", google.ErrNotConnected, userID)
	}
	if err != nil {
		return nil, err
	}
	if len(sealed) < 24+secretbox.Overhead {
		return nil, ErrSealedToken
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &v.key)
	if !ok {
		return nil, ErrSealedToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &tok, nil
}

// Delete removes the stored token for userID.
func (v *Vault) Delete(ctx context.Context, userID string) error {
	return v.store.DeleteToken(ctx, userID, GoogleProvider)
}

// TokenSource returns a refreshing source for userID's Google token.
// Refreshed tokens are written back to the store.
func (v *Vault) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	tok, err := v.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	var base oauth2.TokenSource = oauth2.StaticTokenSource(tok)
	if v.oauth != nil {
		base = v.oauth.TokenSource(logging.DetachContext(ctx), tok)
	}
	return &savingSource{
		base: base,
		last: tok.AccessToken,
		save: func(t *oauth2.Token) error { return v.persist(ctx, userID, t) },
	}, nil
}

func (v *Vault) persist(ctx context.Context, userID string, tok *oauth2.Token) error {
	saveCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
	defer cancel()
	return v.Save(saveCtx, userID, tok)
}

// savingSource writes a token back whenever the access token changes.
type savingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last string
	save func(*oauth2.Token) error
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			log.Warn().Err(err).Msg("persist refreshed google token")
		}
	}
	return tok, nil
}
