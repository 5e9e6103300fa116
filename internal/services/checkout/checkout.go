// Package checkout создаёт сессии оплаты подписки у биллинг-провайдера.
// Локальное состояние не меняется: запись появится по событию checkout.session.completed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
	pp "github.com/magabrotheeeer/paywall/internal/paymentprovider"
)

// Provider создаёт сессию оплаты.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params pp.CheckoutSessionRequest) (*pp.CheckoutSession, error)
}

// Resolver вычисляет текущее состояние доступа.
type Resolver interface {
	Resolve(ctx context.Context, owner models.Identity) (*models.EntitlementView, error)
}

// PlanCatalog ищет тариф по ключу.
type PlanCatalog interface {
	ByKey(ctx context.Context, key string) (*models.Plan, error)
}

// DeviceRepository ищет устройство по хэшу отпечатка.
type DeviceRepository interface {
	GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error)
}

// FingerprintHasher хэширует отпечаток устройства.
type FingerprintHasher interface {
	Fingerprint(fp string) string
}

// Request параметры сессии оплаты. Задаётся ровно одно из AccountID и Fingerprint.
type Request struct {
	AccountID   string
	Email       string
	Fingerprint string
	Plan        string
	SuccessURL  string
	CancelURL   string
}

// Session ответ клиенту.
type Session struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	Plan     string         `json:"plan"`
	TrialEnd *int64         `json:"trial_end,omitempty"`
	BoundTo  models.BoundTo `json:"bound_to"`
}

// Service сервис сессий оплаты.
type Service struct {
	log      *slog.Logger
	provider Provider
	resolver Resolver
	plans    PlanCatalog
	devices  DeviceRepository
	hasher   FingerprintHasher
}

// New создаёт сервис сессий оплаты.
func New(log *slog.Logger, p Provider, r Resolver, plans PlanCatalog, devices DeviceRepository, h FingerprintHasher) *Service {
	return &Service{
		log:      log,
		provider: p,
		resolver: r,
		plans:    plans,
		devices:  devices,
		hasher:   h,
	}
}

// CreateSession создаёт сессию оплаты. Если идентичность в пробном периоде,
// провайдеру передаётся сохранённый trial_end, и биллинг продолжает пробный период.
func (s *Service) CreateSession(ctx context.Context, req Request) (*Session, error) {
	const op = "checkout.CreateSession"

	if err := validateURL(req.SuccessURL); err != nil {
		return nil, fmt.Errorf("%s: success_url: %w", op, err)
	}
	if err := validateURL(req.CancelURL); err != nil {
		return nil, fmt.Errorf("%s: cancel_url: %w", op, err)
	}

	owner, err := s.identity(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plan, err := s.plans.ByKey(ctx, req.Plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	view, err := s.resolver.Resolve(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	params := pp.CheckoutSessionRequest{
		PriceID:           plan.PriceID,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		ClientReferenceID: owner.ID(),
		CustomerEmail:     strings.TrimSpace(req.Email),
		Metadata:          map[string]string{pp.MetaPlanID: plan.Key},
	}
	if owner.Kind() == models.KindAccount {
		params.Metadata[pp.MetaAccountID] = owner.ID()
	} else {
		params.Metadata[pp.MetaDeviceID] = owner.ID()
	}
	if view.Status == models.StatusTrial && view.TrialEnd != nil {
		params.TrialEnd = view.TrialEnd.Unix()
	}

	session, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.log.Error("failed to create checkout session",
			slog.String("op", op),
			slog.String("owner", owner.String()),
			slog.String("plan_id", plan.Key),
			sl.Err(err))
		if !errors.Is(err, errs.ErrUpstream) {
			err = fmt.Errorf("%w: %v", errs.ErrUpstream, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("checkout session created",
		slog.String("op", op),
		slog.String("owner", owner.String()),
		slog.String("plan_id", plan.Key),
		slog.Bool("continues_trial", params.TrialEnd > 0))

	out := &Session{
		ID:      session.ID,
		URL:     session.URL,
		Plan:    plan.Key,
		BoundTo: owner.Bound(),
	}
	if params.TrialEnd > 0 {
		out.TrialEnd = &params.TrialEnd
	}
	return out, nil
}

func (s *Service) identity(ctx context.Context, req Request) (models.Identity, error) {
	id, err := models.ExactlyOne(req.AccountID, req.Fingerprint)
	if err != nil {
		return models.Identity{}, err
	}
	if id.Kind() == models.KindAccount {
		return id, nil
	}
	fp, err := models.NormalizeFingerprint(id.ID())
	if err != nil {
		return models.Identity{}, err
	}
	d, err := s.devices.GetDeviceByHash(ctx, s.hasher.Fingerprint(fp))
	if err != nil {
		return models.Identity{}, err
	}
	return d.Owner(), nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: absolute http(s) url is required", errs.ErrValidation)
	}
	return nil
}
