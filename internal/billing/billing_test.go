package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/normanking/alcance/internal/config"
	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/router"
)

const testSecret = "whsec_test"

// =============================================================================
// Fakes
// =============================================================================

type fakeStore struct {
	plans       map[string]string
	planErr     error
	updates     []string
	updateErr   error
	byCustomer  []string
	customerErr error
	rewarded    map[string]bool
}

func (f *fakeStore) GetPlan(_ context.Context, userID string) (string, error) {
	if f.planErr != nil {
		return "", f.planErr
	}
	p, ok := f.plans[userID]
	if !ok {
		return "", data.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdateSubscription(_ context.Context, userID, customerID, status, plan string) error {
	f.updates = append(f.updates, fmt.Sprintf("%s|%s|%s|%s", userID, customerID, status, plan))
	return f.updateErr
}

func (f *fakeStore) UpdateSubscriptionByCustomer(_ context.Context, customerID, status, plan string) error {
	f.byCustomer = append(f.byCustomer, fmt.Sprintf("%s|%s|%s", customerID, status, plan))
	return f.customerErr
}

func (f *fakeStore) RewardReferrer(_ context.Context, referredID string, _ int64) (bool, error) {
	if f.rewarded == nil {
		f.rewarded = map[string]bool{}
	}
	if f.rewarded[referredID] {
		return false, nil
	}
	f.rewarded[referredID] = true
	return true, nil
}

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func testConfig() config.StripeConfig {
	return config.StripeConfig{
		WebhookSecret:       testSecret,
		PriceIDPro:          "price_pro",
		PriceIDEco:          "price_replace_me",
		AppURL:              "https://app.example.com/",
		ReferralRewardCents: 100,
	}
}

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func event(typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, typ, object))
}

// =============================================================================
// Checkout
// =============================================================================

func TestCreateCheckout(t *testing.T) {
	sessions := &fakeSessions{}
	svc := New(testConfig(), &fakeStore{}, WithSessionCreator(sessions))

	url, err := svc.CreateCheckout(context.Background(), "u1", "ana@example.com", router.TierPro)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", url)

	p := sessions.params
	require.NotNil(t, p)
	assert.Equal(t, "subscription", *p.Mode)
	assert.Equal(t, "price_pro", *p.LineItems[0].Price)
	assert.Equal(t, int64(1), *p.LineItems[0].Quantity)
	assert.Equal(t, "https://app.example.com/?checkout=success", *p.SuccessURL)
	assert.Equal(t, "ana@example.com", *p.CustomerEmail)
	assert.Equal(t, "u1", p.Metadata["userId"])
	assert.Equal(t, "pro", p.Metadata["plan"])
}

func TestCreateCheckout_Errors(t *testing.T) {
	tests := []struct {
		name string
		plan router.Tier
		opts []Option
		want error
	}{
		{"placeholder price", router.TierEco, []Option{WithSessionCreator(&fakeSessions{})}, ErrPriceNotConfigured},
		{"unknown plan", router.Tier("gold"), []Option{WithSessionCreator(&fakeSessions{})}, ErrUnknownPlan},
		{"no stripe client", router.TierPro, nil, ErrNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(testConfig(), &fakeStore{}, tt.opts...)
			_, err := svc.CreateCheckout(context.Background(), "u1", "", tt.plan)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("stripe failure", func(t *testing.T) {
		svc := New(testConfig(), &fakeStore{}, WithSessionCreator(&fakeSessions{err: errors.New("card_declined")}))
		_, err := svc.CreateCheckout(context.Background(), "u1", "", router.TierPro)
		assert.ErrorContains(t, err, "card_declined")
	})
}

func TestTier(t *testing.T) {
	store := &fakeStore{plans: map[string]string{"pro-user": "pro", "eco-user": "eco", "odd": "gold"}}
	svc := New(testConfig(), store)
	ctx := context.Background()

	assert.Equal(t, router.TierPro, svc.Tier(ctx, "pro-user"))
	assert.Equal(t, router.TierEco, svc.Tier(ctx, "eco-user"))
	assert.Equal(t, router.TierEco, svc.Tier(ctx, "odd"))
	assert.Equal(t, router.TierEco, svc.Tier(ctx, "missing"))

	store.planErr = errors.New("db locked")
	assert.Equal(t, router.TierEco, svc.Tier(ctx, "pro-user"))
}

// =============================================================================
// Webhooks
// =============================================================================

func TestHandleWebhook_CheckoutCompleted(t *testing.T) {
	store := &fakeStore{}
	svc := New(testConfig(), store)
	payload := event("checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","customer":"cus_9","metadata":{"userId":"u1","plan":"pro"}}`)

	res, err := svc.HandleWebhook(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.True(t, res.Rewarded)
	assert.Equal(t, []string{"u1|cus_9|active|pro"}, store.updates)

	// Replayed event does not reward twice.
	res, err = svc.HandleWebhook(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
}

func TestHandleWebhook_SubscriptionEvents(t *testing.T) {
	store := &fakeStore{}
	svc := New(testConfig(), store)
	ctx := context.Background()

	updated := event("customer.subscription.updated", `{"id":"sub_1","object":"subscription","customer":"cus_9","status":"past_due"}`)
	_, err := svc.HandleWebhook(ctx, updated, sign(updated, testSecret))
	require.NoError(t, err)

	deleted := event("customer.subscription.deleted", `{"id":"sub_1","object":"subscription","customer":"cus_9","status":"canceled"}`)
	_, err = svc.HandleWebhook(ctx, deleted, sign(deleted, testSecret))
	require.NoError(t, err)

	assert.Equal(t, []string{"cus_9|past_due|", "cus_9|canceled|eco"}, store.byCustomer)

	// Unknown customers are acknowledged.
	store.customerErr = data.ErrNotFound
	res, err := svc.HandleWebhook(ctx, updated, sign(updated, testSecret))
	require.NoError(t, err)
	assert.True(t, res.Handled)
}

func TestHandleWebhook_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("bad signature", func(t *testing.T) {
		svc := New(testConfig(), &fakeStore{})
		payload := event("checkout.session.completed", `{"id":"cs_1","object":"checkout.session"}`)
		_, err := svc.HandleWebhook(ctx, payload, sign(payload, "whsec_other"))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing user metadata", func(t *testing.T) {
		svc := New(testConfig(), &fakeStore{})
		payload := event("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","customer":"cus_9"}`)
		_, err := svc.HandleWebhook(ctx, payload, sign(payload, testSecret))
		assert.ErrorIs(t, err, ErrMissingMetadata)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := New(testConfig(), &fakeStore{updateErr: errors.New("disk I/O error")})
		payload := event("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","metadata":{"userId":"u1"}}`)
		_, err := svc.HandleWebhook(ctx, payload, sign(payload, testSecret))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMissingMetadata)
	})

	t.Run("unknown user is acknowledged", func(t *testing.T) {
		store := &fakeStore{updateErr: data.ErrNotFound}
		svc := New(testConfig(), store)
		payload := event("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","customer":"cus_9","metadata":{"userId":"deleted-user"}}`)
		res, err := svc.HandleWebhook(ctx, payload, sign(payload, testSecret))
		require.NoError(t, err, "Stripe must not retry events for users that no longer exist")
		assert.True(t, res.Handled)
		assert.False(t, res.Rewarded)
		assert.Empty(t, store.rewarded, "no referral reward without a profile")
	})

	t.Run("other events are ignored", func(t *testing.T) {
		svc := New(testConfig(), &fakeStore{})
		payload := event("invoice.paid", `{"id":"in_1","object":"invoice"}`)
		res, err := svc.HandleWebhook(ctx, payload, sign(payload, testSecret))
		require.NoError(t, err)
		assert.False(t, res.Handled)
	})
}
