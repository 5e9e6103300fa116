// Package license реализует движок лицензионных ключей: генерацию, погашение,
// отзыв и выборку для администратора. Открытый текст ключа возвращается один раз
// при генерации, в хранилище попадает только ключевой хэш.
package license

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

// Ограничения пакетной генерации и выборки.
const (
	MaxBatch     = 500
	DefaultLimit = 50
	MaxLimit     = 500
)

// Repository определяет методы хранилища для лицензионных ключей.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateLicenseKeys(ctx context.Context, keys []*models.LicenseKey) error
	GetLicenseKeyByHash(ctx context.Context, keyHash string) (*models.LicenseKey, error)
	ClaimLicenseKey(ctx context.Context, id string, target models.Identity, at time.Time) (bool, error)
	RevokeLicenseKey(ctx context.Context, id string) (bool, error)
	ListLicenseKeys(ctx context.Context, filter models.LicenseFilter) ([]*models.LicenseKey, error)

	GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error)
	GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error)
	CreateEntitlement(ctx context.Context, e *models.Entitlement) error
	ActivateEntitlement(ctx context.Context, id, planID string, at time.Time) error
}

// PlanCatalog проверяет существование тарифа.
type PlanCatalog interface {
	ByKey(ctx context.Context, key string) (*models.Plan, error)
}

// Hasher хэширует отпечатки и ключи.
type Hasher interface {
	Fingerprint(fp string) string
	LicenseKey(key string) string
}

// Target получатель ключа. Задаётся ровно одно поле.
type Target struct {
	AccountID   string
	Fingerprint string
}

// Service движок лицензионных ключей.
type Service struct {
	log     *slog.Logger
	repo    Repository
	plans   PlanCatalog
	hasher  Hasher
	events  *events.Notifier
	metrics *metrics.Metrics
	now     func() time.Time
	newKey  func() (string, error)
}

// New создаёт движок лицензионных ключей.
func New(log *slog.Logger, repo Repository, plans PlanCatalog, h Hasher, n *events.Notifier, m *metrics.Metrics) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		plans:   plans,
		hasher:  h,
		events:  n,
		metrics: m,
		now:     time.Now,
		newKey:  NewKey,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate создаёт count ключей тарифа planID.
func (s *Service) Generate(ctx context.Context, planID string, count int, opts models.GenerateOptions) (*models.GeneratedKeys, error) {
	const op = "license.Generate"

	if count < 1 || count > MaxBatch {
		return nil, fmt.Errorf("%s: %w: count must be between 1 and %d", op, errs.ErrValidation, MaxBatch)
	}
	now := s.now().UTC()
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%s: %w: expires_at must be in the future", op, errs.ErrValidation)
	}
	plan, err := s.plans.ByKey(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain := make([]string, 0, count)
	keys := make([]*models.LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := s.newKey()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plain = append(plain, key)
		keys = append(keys, &models.LicenseKey{
			ID:        uuid.NewString(),
			KeyHash:   s.hasher.LicenseKey(Normalize(key)),
			PlanID:    plan.Key,
			ExpiresAt: opts.ExpiresAt,
			SingleUse: opts.SingleUse,
			Issuer:    strings.TrimSpace(opts.Issuer),
			CreatedAt: now,
		})
	}

	if err := s.repo.CreateLicenseKeys(ctx, keys); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.LicensesGenerated(plan.Key, count)
	s.log.Info("license keys generated",
		slog.String("op", op),
		slog.String("plan_id", plan.Key),
		slog.Int("count", count),
		slog.String("issuer", opts.Issuer))

	return &models.GeneratedKeys{
		Keys: plain,
		Metadata: models.LicenseBatch{
			PlanID:    plan.Key,
			Count:     count,
			ExpiresAt: opts.ExpiresAt,
			SingleUse: opts.SingleUse,
			Issuer:    strings.TrimSpace(opts.Issuer),
			CreatedAt: now,
			Keys:      keys,
		},
	}, nil
}

// Redeem погашает ключ для аккаунта или устройства. Порядок проверок: неизвестный
// ключ, уже погашен, истёк. Сравнение с обменом на redeemed_at гарантирует, что из
// конкурирующих попыток успешна ровно одна.
func (s *Service) Redeem(ctx context.Context, key string, target Target) (*models.RedeemResult, error) {
	const op = "license.Redeem"

	res, err := s.redeem(ctx, key, target)
	if err != nil {
		result := outcome(err)
		s.metrics.LicenseRedeemed(result)
		if result == "error" {
			s.log.Error("failed to redeem license key", slog.String("op", op), sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.LicenseRedeemed("ok")
	return res, nil
}

func (s *Service) redeem(ctx context.Context, key string, target Target) (*models.RedeemResult, error) {
	owner, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(key)
	if normalized == "" {
		return nil, fmt.Errorf("%w: license key is required", errs.ErrValidation)
	}
	k, err := s.repo.GetLicenseKeyByHash(ctx, s.hasher.LicenseKey(normalized))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if k.Redeemed() {
		return nil, errs.ErrAlreadyRedeemed
	}
	if k.Expired(now) {
		return nil, errs.ErrKeyExpired
	}

	var changed *models.Entitlement
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		claimed, err := s.repo.ClaimLicenseKey(ctx, k.ID, owner, now)
		if err != nil {
			return err
		}
		if !claimed {
			return errs.ErrAlreadyRedeemed
		}
		changed, err = s.grant(ctx, owner, k.PlanID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("license key redeemed",
		slog.String("op", "license.Redeem"),
		slog.String("license_id", k.ID),
		slog.String("owner", owner.String()),
		slog.String("plan_id", k.PlanID))
	s.events.EntitlementChanged(ctx, changed, models.SourceLicense, now)

	return &models.RedeemResult{
		PlanID:    k.PlanID,
		ExpiresAt: k.ExpiresAt,
		BoundTo:   owner.Bound(),
	}, nil
}

// grant активирует текущую запись получателя или создаёт новую. Запись, управляемая
// биллингом, не перезаписывается: её статус меняют только события биллинга.
func (s *Service) grant(ctx context.Context, owner models.Identity, planID string, now time.Time) (*models.Entitlement, error) {
	cur, err := s.repo.GetCurrentEntitlement(ctx, owner)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if cur != nil && !cur.BillingManaged() {
		if err := s.repo.ActivateEntitlement(ctx, cur.ID, planID, now); err != nil {
			return nil, err
		}
		cur.Status = models.StatusActive
		cur.PlanID = planID
		cur.UpdatedAt = now
		return cur, nil
	}

	account, device := owner.Columns()
	e := &models.Entitlement{
		ID:        uuid.NewString(),
		AccountID: account,
		DeviceID:  device,
		PlanID:    planID,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateEntitlement(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) resolveTarget(ctx context.Context, target Target) (models.Identity, error) {
	id, err := models.ExactlyOne(target.AccountID, target.Fingerprint)
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
	d, err := s.repo.GetDeviceByHash(ctx, s.hasher.Fingerprint(fp))
	if err != nil {
		return models.Identity{}, err
	}
	return d.Owner(), nil
}

// Revoke делает ключ непогашаемым без привязки. Повторный отзыв — успешный no-op.
func (s *Service) Revoke(ctx context.Context, key string) error {
	const op = "license.Revoke"

	normalized := Normalize(key)
	if normalized == "" {
		return fmt.Errorf("%s: %w: license key is required", op, errs.ErrValidation)
	}
	k, err := s.repo.GetLicenseKeyByHash(ctx, s.hasher.LicenseKey(normalized))
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%s: %w: license key", op, errs.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.repo.RevokeLicenseKey(ctx, k.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("license key revoked",
		slog.String("op", op),
		slog.String("license_id", k.ID),
		slog.Bool("changed", revoked))
	return nil
}

// List возвращает ключи по фильтру. Лимит по умолчанию DefaultLimit, не больше MaxLimit.
func (s *Service) List(ctx context.Context, filter models.LicenseFilter) ([]*models.LicenseKey, error) {
	const op = "license.List"

	if filter.Offset < 0 {
		return nil, fmt.Errorf("%s: %w: offset must not be negative", op, errs.ErrValidation)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultLimit
	case filter.Limit > MaxLimit:
		filter.Limit = MaxLimit
	}
	filter.PlanID = strings.TrimSpace(filter.PlanID)

	keys, err := s.repo.ListLicenseKeys(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return keys, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errs.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, errs.ErrAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, errs.ErrKeyExpired):
		return "expired"
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrNotFound):
		return "invalid_request"
	}
	return "error"
}
