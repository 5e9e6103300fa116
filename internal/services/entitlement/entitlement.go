// Package entitlement вычисляет состояние доступа для идентичности.
// Чтение без побочных эффектов и без блокировок: безопасно вызывать на каждый запрос статуса.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Repository определяет методы чтения, нужные резолверу.
type Repository interface {
	GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error)
	GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error)
}

// FingerprintHasher хэширует отпечаток устройства.
type FingerprintHasher interface {
	Fingerprint(fp string) string
}

// Service резолвер прав доступа.
type Service struct {
	log    *slog.Logger
	repo   Repository
	hasher FingerprintHasher
	now    func() time.Time
}

// New создаёт резолвер.
func New(log *slog.Logger, repo Repository, h FingerprintHasher) *Service {
	return &Service{log: log, repo: repo, hasher: h, now: time.Now}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Resolve возвращает состояние доступа идентичности. Отсутствие записи — статус none.
func (s *Service) Resolve(ctx context.Context, owner models.Identity) (*models.EntitlementView, error) {
	const op = "entitlement.Resolve"
	if owner.IsZero() {
		return nil, fmt.Errorf("%s: %w: identity is required", op, errs.ErrValidation)
	}

	e, err := s.repo.GetCurrentEntitlement(ctx, owner)
	if errors.Is(err, errs.ErrNotFound) {
		return View(nil, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return View(e, s.now()), nil
}

// ResolveFor выбирает идентичность по аутентифицированному аккаунту или отпечатку.
// Аккаунт имеет приоритет. Неизвестный отпечаток даёт статус none; отпечаток
// связанного устройства разрешается в аккаунт, к которому оно привязано.
func (s *Service) ResolveFor(ctx context.Context, accountID, fingerprint string) (*models.EntitlementView, error) {
	const op = "entitlement.ResolveFor"

	if accountID = strings.TrimSpace(accountID); accountID != "" {
		return s.Resolve(ctx, models.AccountIdentity(accountID))
	}
	if strings.TrimSpace(fingerprint) == "" {
		return nil, fmt.Errorf("%s: %w: account or fingerprint is required", op, errs.ErrValidation)
	}
	fingerprint, err := models.NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d, err := s.repo.GetDeviceByHash(ctx, s.hasher.Fingerprint(fingerprint))
	if errors.Is(err, errs.ErrNotFound) {
		return View(nil, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.Resolve(ctx, d.Owner())
}

// DeriveStatus чистая функция записи и текущего времени.
func DeriveStatus(e *models.Entitlement, now time.Time) models.Status {
	if e == nil {
		return models.StatusNone
	}
	switch e.Status {
	case models.StatusActive:
		return models.StatusActive
	case models.StatusTrial:
		if e.TrialEnd == nil {
			// Пробный период биллинга без даты окончания считается оплаченным.
			if e.BillingManaged() {
				return models.StatusActive
			}
			return models.StatusExpired
		}
		if now.Before(*e.TrialEnd) {
			return models.StatusTrial
		}
		return models.StatusExpired
	case models.StatusPastDue, models.StatusCanceled:
		return e.Status
	}
	return models.StatusExpired
}

// DaysRemaining возвращает max(0, ceil((end - now) / 24h)).
func DaysRemaining(end *time.Time, now time.Time) int {
	if end == nil {
		return 0
	}
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(24*time.Hour)))
}

// View строит представление записи на момент now.
func View(e *models.Entitlement, now time.Time) *models.EntitlementView {
	status := DeriveStatus(e, now)
	v := &models.EntitlementView{
		Status:   status,
		IsActive: status.IsActive(),
	}
	if e == nil {
		return v
	}
	v.Plan = e.PlanID
	v.TrialStart = e.TrialStart
	v.TrialEnd = e.TrialEnd
	v.TrialDaysRemaining = DaysRemaining(e.TrialEnd, now)
	return v
}
