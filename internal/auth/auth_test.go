package auth

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"

	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/google"
)

// =============================================================================
// Helpers
// =============================================================================

func setupStore(t *testing.T) *data.Store {
	t.Helper()
	store, err := data.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testConfig() *Config {
	return &Config{
		SessionSecret: "test-secret",
		SessionTTL:    time.Hour,
		ClientID:      "client-id.apps.googleusercontent.com",
		ClientSecret:  "client-secret",
		RedirectURL:   "http://localhost:8080/api/auth/google/callback",
	}
}

// tokenServer answers the OAuth token endpoint with increasing access tokens.
func tokenServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + string(rune('0'+n)),
			"token_type":    "Bearer",
			"refresh_token": "refresh-token",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func staticUserInfo(email, name string) UserInfoFunc {
	return func(context.Context, oauth2.TokenSource) (*Identity, error) {
		return &Identity{Email: email, Name: name}, nil
	}
}

// =============================================================================
// Sessions
// =============================================================================

func TestIssueAndValidateSession(t *testing.T) {
	svc := NewService(setupStore(t), testConfig())
	profile := &data.Profile{ID: "user-1", Email: "ana@example.com"}

	resp, err := svc.IssueSession(profile)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "alcance", claims.Issuer)
}

func TestValidateToken_Rejects(t *testing.T) {
	cfg := testConfig()
	svc := NewService(setupStore(t), cfg)
	profile := &data.Profile{ID: "user-1"}

	t.Run("expired", func(t *testing.T) {
		past := NewService(setupStore(t), cfg, WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
		resp, err := past.IssueSession(profile)
		require.NoError(t, err)
		_, err = svc.ValidateToken(resp.Token)
		assert.Equal(t, ErrTokenExpired, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(setupStore(t), &Config{SessionSecret: "other", SessionTTL: time.Hour})
		resp, err := other.IssueSession(profile)
		require.NoError(t, err)
		_, err = svc.ValidateToken(resp.Token)
		assert.Equal(t, ErrInvalidToken, err)
	})

	t.Run("other signing method", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "alcance"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(cfg.SessionSecret))
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.Equal(t, ErrInvalidToken, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.jwt")
		assert.Equal(t, ErrInvalidToken, err)
	})

	t.Run("no secret configured", func(t *testing.T) {
		_, err := NewService(setupStore(t), &Config{}).IssueSession(profile)
		assert.Error(t, err)
	})
}

// =============================================================================
// Google sign-in
// =============================================================================

func TestCompleteLogin(t *testing.T) {
	store := setupStore(t)
	srv, _ := tokenServer(t)
	key, err := ParseKey("", "test-secret")
	require.NoError(t, err)

	cfg := testConfig()
	svc := NewService(store, cfg,
		WithOAuthEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}),
		WithUserInfo(staticUserInfo("Ana@Example.com", "Ana")),
	)
	vault := NewVault(store, key, svc.OAuthConfig())
	WithVault(vault)(svc)

	resp, err := svc.CompleteLogin(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", resp.Profile.Email)

	tok, err := vault.Load(context.Background(), resp.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-token", tok.RefreshToken)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Profile.ID, claims.Subject)
}

func TestCompleteLogin_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	svc := NewService(setupStore(t), testConfig(),
		WithOAuthEndpoint(oauth2.Endpoint{TokenURL: srv.URL + "/token"}))
	_, err := svc.CompleteLogin(context.Background(), "bad-code")
	assert.Equal(t, ErrExchangeFailed, err)

	unconfigured := NewService(setupStore(t), &Config{SessionSecret: "s"})
	_, err = unconfigured.CompleteLogin(context.Background(), "code")
	assert.Equal(t, ErrNotConfigured, err)
	_, err = unconfigured.LoginURL("state")
	assert.Equal(t, ErrNotConfigured, err)
}

func TestLoginURL(t *testing.T) {
	svc := NewService(setupStore(t), testConfig())
	raw, err := svc.LoginURL("xyz")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/calendar")
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/tasks")
}

func TestNativeSignIn(t *testing.T) {
	validator := func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		if audience != testConfig().ClientID {
			return nil, errors.New("audience mismatch")
		}
		switch token {
		case "good":
			return &idtoken.Payload{Claims: map[string]interface{}{"email": "luis@example.com", "email_verified": true, "name": "Luis"}}, nil
		case "unverified":
			return &idtoken.Payload{Claims: map[string]interface{}{"email": "x@example.com", "email_verified": false}}, nil
		default:
			return nil, errors.New("bad signature")
		}
	}
	svc := NewService(setupStore(t), testConfig(), WithIDTokenValidator(validator))
	ctx := context.Background()

	resp, err := svc.NativeSignIn(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "luis@example.com", resp.Profile.Email)
	assert.Equal(t, "Luis", resp.Profile.Name)

	_, err = svc.NativeSignIn(ctx, "forged")
	assert.Equal(t, ErrInvalidIDToken, err)
	_, err = svc.NativeSignIn(ctx, "unverified")
	assert.Equal(t, ErrEmailMissing, err)
	_, err = svc.NativeSignIn(ctx, " ")
	assert.Equal(t, ErrMissingToken, err)
}

// =============================================================================
// Vault
// =============================================================================

func TestParseKey(t *testing.T) {
	raw := strings.Repeat("ab", 32)
	key, err := ParseKey(raw, "")
	require.NoError(t, err)
	assert.Equal(t, raw, hex.EncodeToString(key[:]))

	_, err = ParseKey("abcd", "")
	assert.Error(t, err)
	_, err = ParseKey("zz", "")
	assert.Error(t, err)
	_, err = ParseKey("", "")
	assert.Error(t, err)

	a, err := ParseKey("", "secret")
	require.NoError(t, err)
	b, err := ParseKey("", "secret")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVault(t *testing.T) {
	store := setupStore(t)
	key, err := ParseKey(strings.Repeat("01", 32), "")
	require.NoError(t, err)
	vault := NewVault(store, key, nil)
	ctx := context.Background()

	_, err = vault.Load(ctx, "u1")
	assert.ErrorIs(t, err, google.ErrNotConnected)

	require.NoError(t, vault.Save(ctx, "u1", &oauth2.Token{AccessToken: "secret-access", RefreshToken: "secret-refresh"}))

	sealed, err := store.GetToken(ctx, "u1", GoogleProvider)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret-access")

	tok, err := vault.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "secret-access", tok.AccessToken)

	otherKey, err := ParseKey(strings.Repeat("02", 32), "")
	require.NoError(t, err)
	_, err = NewVault(store, otherKey, nil).Load(ctx, "u1")
	assert.ErrorIs(t, err, ErrSealedToken)

	require.NoError(t, vault.Delete(ctx, "u1"))
	_, err = vault.Load(ctx, "u1")
	assert.ErrorIs(t, err, google.ErrNotConnected)
}

func TestVault_TokenSourcePersistsRefresh(t *testing.T) {
	store := setupStore(t)
	srv, calls := tokenServer(t)
	key, err := ParseKey("", "s")
	require.NoError(t, err)
	cfg := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token"}}
	vault := NewVault(store, key, cfg)
	ctx := context.Background()

	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh-token", Expiry: time.Now().Add(-time.Hour)}
	require.NoError(t, vault.Save(ctx, "u1", expired))

	ts, err := vault.TokenSource(ctx, "u1")
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	stored, err := vault.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}

// ctxRecorder records the context each token write runs under.
type ctxRecorder struct {
	TokenStore
	saveCtx context.Context
}

func (r *ctxRecorder) SaveToken(ctx context.Context, userID, provider string, sealed []byte) error {
	r.saveCtx = ctx
	return r.TokenStore.SaveToken(ctx, userID, provider, sealed)
}

func TestVault_RefreshAfterRequestEnds(t *testing.T) {
	store := &ctxRecorder{TokenStore: setupStore(t)}
	srv, _ := tokenServer(t)
	key, err := ParseKey("", "s")
	require.NoError(t, err)
	cfg := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token"}}
	vault := NewVault(store, key, cfg)

	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh-token", Expiry: time.Now().Add(-time.Hour)}
	require.NoError(t, vault.Save(context.Background(), "u1", expired))

	reqCtx, cancel := context.WithCancel(context.Background())
	ts, err := vault.TokenSource(reqCtx, "u1")
	require.NoError(t, err)
	cancel()

	tok, err := ts.Token()
	require.NoError(t, err, "refresh runs after the request context is cancelled")
	assert.Equal(t, "access-1", tok.AccessToken)

	require.NotNil(t, store.saveCtx)
	_, hasDeadline := store.saveCtx.Deadline()
	assert.True(t, hasDeadline, "token write has its own deadline")

	stored, err := vault.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}

// =============================================================================
// HTTP handlers
// =============================================================================

func newTestMux(t *testing.T, svc *Service) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewHandlers(svc, NewMiddleware(svc)).RegisterRoutes(mux)
	return mux
}

func TestHandlers_LoginSetsStateCookie(t *testing.T) {
	mux := newTestMux(t, NewService(setupStore(t), testConfig()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookie, cookies[0].Name)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, cookies[0].Value, loc.Query().Get("state"))
}

func TestHandlers_CallbackRejectsBadState(t *testing.T) {
	mux := newTestMux(t, NewService(setupStore(t), testConfig()))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=evil&code=c", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "good"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_STATE")
}

func TestHandlers_Me(t *testing.T) {
	store := setupStore(t)
	svc := NewService(store, testConfig())
	mux := newTestMux(t, svc)

	profile, err := store.UpsertProfile(context.Background(), "eva@example.com", "Eva")
	require.NoError(t, err)
	session, err := svc.IssueSession(profile)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+session.Token) }, "/api/auth/me", http.StatusOK},
		{"token query", func(r *http.Request) {}, "/api/auth/me?token=" + session.Token, http.StatusOK},
		{"missing token", func(r *http.Request) {}, "/api/auth/me", http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, "/api/auth/me", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "eva@example.com")
			}
		})
	}
}

func TestHandlers_NativeBadBody(t *testing.T) {
	mux := newTestMux(t, NewService(setupStore(t), testConfig()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/native", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserIDFromContext(t *testing.T) {
	assert.Empty(t, UserIDFromContext(context.Background()))
	assert.Equal(t, "cli", UserIDFromContext(WithUserID(context.Background(), "cli")))
	assert.Nil(t, ClaimsFromContext(context.Background()))
}
