// Package linking переносит пробный период и права устройства в аккаунт.
// Связывание одноразовое: устройство привязывается к аккаунту не более одного раза.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/events"
)

// Repository определяет методы хранилища для связывания.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error)
	SetDeviceLinkedAccount(ctx context.Context, deviceID, accountID string) error
	GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error)
	CreateEntitlement(ctx context.Context, e *models.Entitlement) error
	ClaimEntitlement(ctx context.Context, id, accountID string, at time.Time) (bool, error)
	BackfillEntitlementTrial(ctx context.Context, id string, start, end time.Time, at time.Time) (bool, error)
}

// Resolver вычисляет итоговое состояние доступа.
type Resolver interface {
	Resolve(ctx context.Context, owner models.Identity) (*models.EntitlementView, error)
}

// FingerprintHasher хэширует отпечаток устройства.
type FingerprintHasher interface {
	Fingerprint(fp string) string
}

// Service сервис связывания устройства с аккаунтом.
type Service struct {
	log      *slog.Logger
	repo     Repository
	resolver Resolver
	hasher   FingerprintHasher
	events   *events.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New создаёт сервис связывания.
func New(log *slog.Logger, repo Repository, r Resolver, h FingerprintHasher, n *events.Notifier, m *metrics.Metrics) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		resolver: r,
		hasher:   h,
		events:   n,
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Link привязывает устройство к аккаунту и возвращает состояние доступа аккаунта.
func (s *Service) Link(ctx context.Context, fingerprint, accountID string) (*models.EntitlementView, error) {
	const op = "linking.Link"

	accountID = strings.TrimSpace(accountID)
	fingerprint = strings.TrimSpace(fingerprint)
	if accountID == "" || fingerprint == "" {
		return nil, fmt.Errorf("%s: %w: account and fingerprint are required", op, errs.ErrValidation)
	}

	fingerprint, err := models.NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d, err := s.repo.GetDeviceByHash(ctx, s.hasher.Fingerprint(fingerprint))
	if err != nil {
		s.metrics.Linked("device_not_found")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	var changed *models.Entitlement
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetDeviceLinkedAccount(ctx, d.ID, accountID); err != nil {
			return err
		}
		var err error
		changed, err = s.transfer(ctx, d, accountID, now)
		return err
	})
	if errors.Is(err, errs.ErrAlreadyLinked) {
		s.metrics.Linked("already_linked")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err != nil {
		s.metrics.Linked("error")
		s.log.Error("failed to link device", slog.String("op", op), slog.String("device_id", d.ID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Linked("ok")
	s.log.Info("device linked",
		slog.String("op", op),
		slog.String("device_id", d.ID),
		slog.String("account_id", accountID))
	if changed != nil {
		s.events.EntitlementChanged(ctx, changed, models.SourceLink, now)
	}

	view, err := s.resolver.Resolve(ctx, models.AccountIdentity(accountID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

// transfer переносит права устройства в аккаунт внутри транзакции связывания.
// Возвращает изменённую запись аккаунта или nil, если менять было нечего.
func (s *Service) transfer(ctx context.Context, d *models.Device, accountID string, now time.Time) (*models.Entitlement, error) {
	account := models.AccountIdentity(accountID)

	cur, err := current(ctx, s.repo, account)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		if cur.HasTrialBounds() {
			return nil, nil
		}
		ok, err := s.repo.BackfillEntitlementTrial(ctx, cur.ID, d.TrialStart, d.TrialEnd, now)
		if err != nil || !ok {
			return nil, err
		}
		start, end := d.TrialStart, d.TrialEnd
		cur.TrialStart, cur.TrialEnd, cur.UpdatedAt = &start, &end, now
		return cur, nil
	}

	devRecord, err := current(ctx, s.repo, d.Identity())
	if err != nil {
		return nil, err
	}
	if devRecord != nil && devRecord.BillingManaged() {
		ok, err := s.repo.ClaimEntitlement(ctx, devRecord.ID, accountID, now)
		if err != nil {
			return nil, err
		}
		if ok {
			devRecord.AccountID = &accountID
			devRecord.UpdatedAt = now
			return devRecord, nil
		}
	}

	start, end := d.TrialStart, d.TrialEnd
	e := &models.Entitlement{
		ID:         uuid.NewString(),
		AccountID:  &accountID,
		PlanID:     models.TrialPlanID,
		Status:     d.Status,
		TrialStart: &start,
		TrialEnd:   &end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if devRecord != nil {
		e.PlanID = devRecord.PlanID
		e.Status = devRecord.Status
	}
	if err := s.repo.CreateEntitlement(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func current(ctx context.Context, repo Repository, owner models.Identity) (*models.Entitlement, error) {
	e, err := repo.GetCurrentEntitlement(ctx, owner)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return e, err
}
