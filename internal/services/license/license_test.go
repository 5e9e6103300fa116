package license

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/lib/hasher"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/catalog"
	"github.com/magabrotheeeer/paywall/internal/services/entitlement"
	"github.com/magabrotheeeer/paywall/internal/services/linking"
	"github.com/magabrotheeeer/paywall/internal/services/trial"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
)

func NewNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	trials   *trial.Service
	resolver *entitlement.Service
	linker   *linking.Service
	store    *memory.Storage
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
	resolver := entitlement.New(log, store, h).WithClock(clock)

	return &fixture{
		svc:      New(log, store, catalog.New(log, store, nil, 0), h, nil, nil).WithClock(clock),
		trials:   trial.New(log, store, h, nil, nil).WithClock(clock),
		resolver: resolver,
		linker:   linking.New(log, store, resolver, h, nil, nil).WithClock(clock),
		store:    store,
		now:      &now,
	}
}

var keyFormat = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{5}(-[A-HJ-NP-Z2-9]{5}){4}$`)

func TestNewKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		k, err := NewKey()
		require.NoError(t, err)
		assert.Regexp(t, keyFormat, k)
		assert.False(t, seen[k])
		seen[k] = true
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ABCDE-FGHJK-LMNPQ-RSTUV-WXYZ2", "ABCDEFGHJKLMNPQRSTUVWXYZ2"},
		{" abcde fghjk\tlmnpq-rstuv-wxyz2 ", "ABCDEFGHJKLMNPQRSTUVWXYZ2"},
		{"--", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestGenerate_RedeemEachOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Generate(ctx, "pro_monthly", 3, models.GenerateOptions{SingleUse: true, Issuer: "ops"})
	require.NoError(t, err)
	require.Len(t, out.Keys, 3)
	assert.Equal(t, 3, out.Metadata.Count)
	assert.Equal(t, "pro_monthly", out.Metadata.PlanID)
	assert.True(t, out.Metadata.SingleUse)

	distinct := map[string]bool{}
	for _, k := range out.Keys {
		distinct[k] = true
	}
	assert.Len(t, distinct, 3)

	for i, key := range out.Keys {
		account := []string{"acc-1", "acc-2", "acc-3"}[i]
		res, err := f.svc.Redeem(ctx, key, Target{AccountID: account})
		require.NoError(t, err)
		assert.Equal(t, "pro_monthly", res.PlanID)
		assert.Equal(t, models.BoundTo{Kind: "account", ID: account}, res.BoundTo)

		_, err = f.svc.Redeem(ctx, key, Target{AccountID: account})
		assert.ErrorIs(t, err, errs.ErrAlreadyRedeemed)

		e, err := f.store.GetCurrentEntitlement(ctx, models.AccountIdentity(account))
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, e.Status)
		assert.Equal(t, "pro_monthly", e.PlanID)
	}
}

func TestGenerate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := t0.Add(-time.Hour)

	tests := []struct {
		name  string
		plan  string
		count int
		opts  models.GenerateOptions
	}{
		{"zero count", "pro_monthly", 0, models.GenerateOptions{}},
		{"too many", "pro_monthly", MaxBatch + 1, models.GenerateOptions{}},
		{"unknown plan", "gold", 1, models.GenerateOptions{}},
		{"expiry in past", "pro_monthly", 1, models.GenerateOptions{ExpiresAt: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Generate(ctx, tt.plan, tt.count, tt.opts)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestRedeem_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Generate(ctx, "pro_yearly", 1, models.GenerateOptions{SingleUse: true})
	require.NoError(t, err)

	const n = 8
	var ok, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, out.Keys[0], Target{AccountID: "acc-1"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errs.ErrAlreadyRedeemed):
				lost.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), lost.Load())
}

func TestRedeem_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expires := t0.Add(24 * time.Hour)
	out, err := f.svc.Generate(ctx, "pro_monthly", 2, models.GenerateOptions{ExpiresAt: &expires})
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, "AAAAA-AAAAA-AAAAA-AAAAA-AAAAA", Target{AccountID: "acc-1"})
	assert.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = f.svc.Redeem(ctx, out.Keys[0], Target{})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.Redeem(ctx, out.Keys[0], Target{AccountID: "acc-1", Fingerprint: "fp"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.Redeem(ctx, out.Keys[0], Target{Fingerprint: "unknown-device"})
	assert.ErrorIs(t, err, errs.ErrDeviceNotFound)

	_, err = f.svc.Redeem(ctx, "", Target{AccountID: "acc-1"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	*f.now = expires.Add(time.Second)
	_, err = f.svc.Redeem(ctx, out.Keys[0], Target{AccountID: "acc-1"})
	assert.ErrorIs(t, err, errs.ErrKeyExpired)
}

func TestRedeem_DeviceActivatesTrialRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.trials.Start(ctx, "fp-1")
	require.NoError(t, err)

	out, err := f.svc.Generate(ctx, "pro_monthly", 1, models.GenerateOptions{})
	require.NoError(t, err)

	res, err := f.svc.Redeem(ctx, normalizeLower(out.Keys[0]), Target{Fingerprint: "fp-1"})
	require.NoError(t, err)
	assert.Equal(t, models.BoundTo{Kind: "device", ID: v.ID}, res.BoundTo)

	e, err := f.store.GetCurrentEntitlement(ctx, models.DeviceIdentity(v.ID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, e.Status)
	assert.Equal(t, "pro_monthly", e.PlanID)
	require.NotNil(t, e.TrialEnd)
	assert.True(t, e.TrialEnd.Equal(v.TrialEnd), "trial bounds are kept")
}

func TestRedeem_LinkedDeviceGrantsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.trials.Start(ctx, "fp-linked")
	require.NoError(t, err)
	_, err = f.linker.Link(ctx, "fp-linked", "acc-1")
	require.NoError(t, err)

	*f.now = t0.Add(96 * time.Hour)
	out, err := f.svc.Generate(ctx, "pro_monthly", 1, models.GenerateOptions{})
	require.NoError(t, err)

	res, err := f.svc.Redeem(ctx, out.Keys[0], Target{Fingerprint: "fp-linked"})
	require.NoError(t, err)
	assert.Equal(t, models.BoundTo{Kind: "account", ID: "acc-1"}, res.BoundTo)

	view, err := f.resolver.ResolveFor(ctx, "", "fp-linked")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, view.Status)
	assert.True(t, view.IsActive)
	assert.Equal(t, "pro_monthly", view.Plan)

	dev, err := f.store.GetCurrentEntitlement(ctx, models.DeviceIdentity(v.ID))
	require.NoError(t, err)
	assert.Equal(t, models.TrialPlanID, dev.PlanID, "device record is left alone")
}

func normalizeLower(key string) string {
	b := []byte(key)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Generate(ctx, "pro_monthly", 1, models.GenerateOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, out.Keys[0]))
	require.NoError(t, f.svc.Revoke(ctx, out.Keys[0]), "revoke is idempotent")

	_, err = f.svc.Redeem(ctx, out.Keys[0], Target{AccountID: "acc-1"})
	assert.ErrorIs(t, err, errs.ErrAlreadyRedeemed)

	err = f.svc.Revoke(ctx, "AAAAA-AAAAA-AAAAA-AAAAA-AAAAA")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	keys, err := f.svc.List(ctx, models.LicenseFilter{})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Revoked())
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, "pro_monthly", 3, models.GenerateOptions{})
	require.NoError(t, err)
	yearly, err := f.svc.Generate(ctx, "pro_yearly", 2, models.GenerateOptions{})
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, yearly.Keys[0], Target{AccountID: "acc-1"})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, models.LicenseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	monthly, err := f.svc.List(ctx, models.LicenseFilter{PlanID: "pro_monthly"})
	require.NoError(t, err)
	assert.Len(t, monthly, 3)

	redeemed := true
	used, err := f.svc.List(ctx, models.LicenseFilter{Redeemed: &redeemed})
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, "pro_yearly", used[0].PlanID)

	page, err := f.svc.List(ctx, models.LicenseFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	_, err = f.svc.List(ctx, models.LicenseFilter{Offset: -1})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
