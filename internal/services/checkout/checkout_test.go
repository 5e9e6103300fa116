package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/lib/hasher"
	"github.com/magabrotheeeer/paywall/internal/models"
	pp "github.com/magabrotheeeer/paywall/internal/paymentprovider"
	"github.com/magabrotheeeer/paywall/internal/services/catalog"
	"github.com/magabrotheeeer/paywall/internal/services/entitlement"
	"github.com/magabrotheeeer/paywall/internal/services/linking"
	"github.com/magabrotheeeer/paywall/internal/services/trial"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
)

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) CreateCheckoutSession(ctx context.Context, params pp.CheckoutSessionRequest) (*pp.CheckoutSession, error) {
	args := m.Called(ctx, params)
	s, _ := args.Get(0).(*pp.CheckoutSession)
	return s, args.Error(1)
}

func NewNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	provider *ProviderMock
	trials   *trial.Service
	linker   *linking.Service
	now      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := hasher.New("test-key")
	require.NoError(t, err)
	log := NewNoopLogger()
	store := memory.New(memory.DefaultPlans()...)
	now := t0
	clock := func() time.Time { return now }
	provider := new(ProviderMock)
	resolver := entitlement.New(log, store, h).WithClock(clock)

	return &fixture{
		svc:      New(log, provider, resolver, catalog.New(log, store, nil, 0), store, h),
		provider: provider,
		trials:   trial.New(log, store, h, nil, nil).WithClock(clock),
		linker:   linking.New(log, store, resolver, h, nil, nil).WithClock(clock),
		now:      &now,
	}
}

func TestCreateSession_ContinuesTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tv, err := f.trials.Start(ctx, "fp-1")
	require.NoError(t, err)
	*f.now = t0.Add(24 * time.Hour)

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p pp.CheckoutSessionRequest) bool {
		return p.PriceID == "price_pro_monthly" &&
			p.TrialEnd == tv.TrialEnd.Unix() &&
			p.Metadata[pp.MetaDeviceID] == tv.ID &&
			p.Metadata[pp.MetaPlanID] == "pro_monthly" &&
			p.Metadata[pp.MetaAccountID] == ""
	})).Return(&pp.CheckoutSession{ID: "cs_1", URL: "https://pay/cs_1"}, nil).Once()

	s, err := f.svc.CreateSession(ctx, Request{
		Fingerprint: "fp-1",
		Plan:        "pro_monthly",
		SuccessURL:  "https://app.example.com/ok",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/cs_1", s.URL)
	require.NotNil(t, s.TrialEnd)
	assert.Equal(t, tv.TrialEnd.Unix(), *s.TrialEnd)
	assert.Equal(t, models.BoundTo{Kind: "device", ID: tv.ID}, s.BoundTo)
	f.provider.AssertExpectations(t)
}

func TestCreateSession_NoTrialAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trials.Start(ctx, "fp-1")
	require.NoError(t, err)
	*f.now = t0.Add(5 * 24 * time.Hour)

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p pp.CheckoutSessionRequest) bool {
		return p.TrialEnd == 0
	})).Return(&pp.CheckoutSession{ID: "cs_1", URL: "https://pay/cs_1"}, nil).Once()

	s, err := f.svc.CreateSession(ctx, Request{
		Fingerprint: "fp-1",
		Plan:        "pro_yearly",
		SuccessURL:  "https://app.example.com/ok",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Nil(t, s.TrialEnd)
	f.provider.AssertExpectations(t)
}

func TestCreateSession_LinkedDeviceBillsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tv, err := f.trials.Start(ctx, "fp-linked")
	require.NoError(t, err)
	_, err = f.linker.Link(ctx, "fp-linked", "acc-1")
	require.NoError(t, err)
	*f.now = t0.Add(24 * time.Hour)

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p pp.CheckoutSessionRequest) bool {
		return p.Metadata[pp.MetaAccountID] == "acc-1" &&
			p.Metadata[pp.MetaDeviceID] == "" &&
			p.ClientReferenceID == "acc-1" &&
			p.TrialEnd == tv.TrialEnd.Unix()
	})).Return(&pp.CheckoutSession{ID: "cs_1", URL: "https://pay/cs_1"}, nil).Once()

	s, err := f.svc.CreateSession(ctx, Request{
		Fingerprint: "fp-linked",
		Plan:        "pro_monthly",
		SuccessURL:  "https://app.example.com/ok",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BoundTo{Kind: "account", ID: "acc-1"}, s.BoundTo)
	f.provider.AssertExpectations(t)
}

func TestCreateSession_Account(t *testing.T) {
	f := newFixture(t)

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p pp.CheckoutSessionRequest) bool {
		return p.Metadata[pp.MetaAccountID] == "acc-1" && p.CustomerEmail == "a@b.c" && p.ClientReferenceID == "acc-1"
	})).Return(&pp.CheckoutSession{ID: "cs_1", URL: "https://pay/cs_1"}, nil).Once()

	_, err := f.svc.CreateSession(context.Background(), Request{
		AccountID:  "acc-1",
		Email:      "a@b.c",
		Plan:       "pro_monthly",
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	f.provider.AssertExpectations(t)
}

func TestCreateSession_Errors(t *testing.T) {
	valid := Request{
		AccountID:  "acc-1",
		Plan:       "pro_monthly",
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/cancel",
	}

	tests := []struct {
		name   string
		mutate func(r *Request)
		want   error
	}{
		{"unknown plan", func(r *Request) { r.Plan = "gold" }, errs.ErrValidation},
		{"no identity", func(r *Request) { r.AccountID = "" }, errs.ErrValidation},
		{"both identities", func(r *Request) { r.Fingerprint = "fp" }, errs.ErrValidation},
		{"unknown device", func(r *Request) { r.AccountID, r.Fingerprint = "", "fp-x" }, errs.ErrDeviceNotFound},
		{"relative url", func(r *Request) { r.SuccessURL = "/ok" }, errs.ErrValidation},
		{"bad scheme", func(r *Request) { r.CancelURL = "ftp://x/cancel" }, errs.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := valid
			tt.mutate(&req)
			_, err := f.svc.CreateSession(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			f.provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSession_Upstream(t *testing.T) {
	f := newFixture(t)
	f.provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused")).Once()

	_, err := f.svc.CreateSession(context.Background(), Request{
		AccountID:  "acc-1",
		Plan:       "pro_monthly",
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/cancel",
	})
	assert.ErrorIs(t, err, errs.ErrUpstream)
}
