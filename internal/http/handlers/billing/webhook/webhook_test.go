package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/lib/hasher"
	"github.com/magabrotheeeer/paywall/internal/models"
	pp "github.com/magabrotheeeer/paywall/internal/paymentprovider"
	"github.com/magabrotheeeer/paywall/internal/services/billing"
	"github.com/magabrotheeeer/paywall/internal/services/entitlement"
	"github.com/magabrotheeeer/paywall/internal/services/trial"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
)

const secret = "whsec_test"

type MockService struct {
	mock.Mock
}

func (m *MockService) Process(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestWebhookHandler_StoreFailureAsksForRedelivery(t *testing.T) {
	svc := new(MockService)
	svc.On("Process", mock.Anything, []byte(`{}`), "t=1,v1=ab").Return(errors.New("db down")).Once()
	h := New(newNoopLogger(), svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set(pp.SignatureHeader, "t=1,v1=ab")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	svc.AssertExpectations(t)
}

func TestWebhookHandler_BodyTooLarge(t *testing.T) {
	svc := new(MockService)
	h := New(newNoopLogger(), svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(strings.Repeat("x", MaxBodyBytes+1)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}

// Сквозной сценарий: пробный период устройства продолжается после оплаты.
func TestWebhookHandler_CheckoutContinuesTrial(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(24 * time.Hour)
	clock := func() time.Time { return now }

	store := memory.New(memory.DefaultPlans()...)
	hs, err := hasher.New("test-key")
	require.NoError(t, err)

	trials := trial.New(newNoopLogger(), store, hs, nil, nil).WithClock(func() time.Time { return t0 })
	view, err := trials.Start(ctx, "fp-1")
	require.NoError(t, err)

	verifier := pp.NewVerifier(secret, 5*time.Minute).WithClock(clock)
	h := New(newNoopLogger(), billing.New(newNoopLogger(), store, verifier, nil, nil).WithClock(clock))

	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","created":1709380800,"data":{"object":{` +
		`"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1",` +
		`"metadata":{"device_id":"` + view.ID + `","plan_id":"pro_monthly"}}}}`)

	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(body))
		req.Header.Set(pp.SignatureHeader, sig)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	w := post(pp.Sign(body, "forged", now))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"invalid signature"}`, w.Body.String())

	for range 2 {
		w = post(pp.Sign(body, secret, now))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	resolved, err := entitlement.New(newNoopLogger(), store, hs).WithClock(clock).
		Resolve(ctx, models.DeviceIdentity(view.ID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, resolved.Status)
	require.NotNil(t, resolved.TrialEnd)
	assert.True(t, resolved.TrialEnd.Equal(view.TrialEnd), "trial bounds survive checkout")
}
