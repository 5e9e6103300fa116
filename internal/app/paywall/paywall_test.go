package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/lib/jwt"
	"github.com/magabrotheeeer/paywall/internal/lib/password"
	"github.com/magabrotheeeer/paywall/internal/models"
)

const (
	jwtSecret = "jwt-secret"
	adminKey  = "admin-key"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func (c client) do(method, path, body string, headers map[string]string) (int, envelope) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(c.t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func newTestApp(t *testing.T) (client, *prometheus.Registry) {
	hash, err := password.GetHash(adminKey)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:        config.EnvLocal,
		Storage:    config.Storage{Driver: config.DriverMemory},
		HTTPServer: config.HTTPServer{AddressHTTP: ":0", RateLimit: 100, RateBurst: 100},
		Identity:   config.Identity{JWTSecretKey: jwtSecret},
		Billing: config.Billing{
			APIURL:           "http://127.0.0.1:1",
			WebhookSecret:    "whsec_test",
			WebhookTolerance: 5 * time.Minute,
			Timeout:          time.Second,
		},
		Security: config.Security{HashKey: "hash-key", AdminKeyHash: hash},
		Cache:    config.Cache{PlanTTL: time.Minute},
	}

	reg := prometheus.NewRegistry()
	app, err := New(context.Background(), cfg, newNoopLogger(), reg)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		app.close()
	})
	return client{t: t, srv: srv}, reg
}

func TestApp_DeviceJourney(t *testing.T) {
	c, reg := newTestApp(t)

	status, env := c.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = c.do(http.MethodPost, "/api/v1/trial", `{"fingerprint":"fp-1"}`, nil)
	require.Equal(t, http.StatusOK, status)
	var trialView models.TrialView
	require.NoError(t, json.Unmarshal(env.Data, &trialView))
	assert.Equal(t, models.StatusTrial, trialView.Status)
	assert.Equal(t, 3, trialView.TrialDaysRemaining)

	status, env = c.do(http.MethodGet, "/api/v1/entitlement?fingerprint=fp-1", "", nil)
	require.Equal(t, http.StatusOK, status)
	var view models.EntitlementView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.StatusTrial, view.Status)
	assert.True(t, view.IsActive)

	// ключи выпускает только администратор
	status, _ = c.do(http.MethodPost, "/api/v1/admin/licenses", `{"plan":"pro_monthly","count":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = c.do(http.MethodPost, "/api/v1/admin/licenses", `{"plan":"pro_monthly","count":1}`,
		map[string]string{middlewarectx.AdminKeyHeader: adminKey})
	require.Equal(t, http.StatusCreated, status)
	var generated models.GeneratedKeys
	require.NoError(t, json.Unmarshal(env.Data, &generated))
	require.Len(t, generated.Keys, 1)

	redeem := `{"key":"` + generated.Keys[0] + `","fingerprint":"fp-1"}`
	status, _ = c.do(http.MethodPost, "/api/v1/license/redeem", redeem, nil)
	require.Equal(t, http.StatusOK, status)
	status, env = c.do(http.MethodPost, "/api/v1/license/redeem", redeem, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "license key already redeemed", env.Message)

	status, env = c.do(http.MethodGet, "/api/v1/entitlement?fingerprint=fp-1", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.StatusActive, view.Status)
	assert.Equal(t, "pro_monthly", view.Plan)

	// привязка требует токен
	status, _ = c.do(http.MethodPost, "/api/v1/link", `{"fingerprint":"fp-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := jwt.NewMaker(jwtSecret, "", "", time.Minute).GenerateToken(models.Principal{SubjectID: "acc-1"})
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	status, env = c.do(http.MethodPost, "/api/v1/link", `{"fingerprint":"fp-1"}`, bearer)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.StatusActive, view.Status)

	status, _ = c.do(http.MethodPost, "/api/v1/link", `{"fingerprint":"fp-1"}`, bearer)
	assert.Equal(t, http.StatusConflict, status)

	status, env = c.do(http.MethodGet, "/api/v1/entitlement", "", bearer)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.StatusActive, view.Status)
	require.NotNil(t, view.TrialEnd)
	assert.True(t, view.TrialEnd.Equal(trialView.TrialEnd), "account inherits device trial bounds")

	status, env = c.do(http.MethodGet, "/api/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "pro_yearly")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["paywall_trials_total"])
	assert.True(t, names["paywall_license_redemptions_total"])
	assert.True(t, names["paywall_http_request_duration_seconds"])
}

func TestApp_WebhookRejectsForgedSignature(t *testing.T) {
	c, _ := newTestApp(t)

	status, env := c.do(http.MethodPost, "/api/v1/billing/webhook", `{"id":"evt_1","type":"invoice.paid"}`,
		map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid signature", env.Message)
}

func TestApp_CheckoutProviderDown(t *testing.T) {
	c, _ := newTestApp(t)

	status, _ := c.do(http.MethodPost, "/api/v1/trial", `{"fingerprint":"fp-9"}`, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := c.do(http.MethodPost, "/api/v1/checkout",
		`{"plan":"pro_monthly","fingerprint":"fp-9","success_url":"https://a.io/ok","cancel_url":"https://a.io/no"}`, nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upstream service unavailable", env.Message)
}

func TestApp_SwaggerDocument(t *testing.T) {
	c, _ := newTestApp(t)

	resp, err := c.srv.Client().Get(c.srv.URL + "/docs/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "Paywall API")
	assert.Contains(t, string(raw), "/license/redeem")
}
