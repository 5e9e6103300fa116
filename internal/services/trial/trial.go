// Package trial управляет гостевыми пробными периодами устройств.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/entitlement"
	"github.com/magabrotheeeer/paywall/internal/services/events"
)

// Repository определяет методы хранилища для пробных периодов.
type Repository interface {
	CreateTrialDevice(ctx context.Context, d *models.Device, e *models.Entitlement) (*models.Device, bool, error)
	GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error)
}

// FingerprintHasher хэширует отпечаток устройства.
type FingerprintHasher interface {
	Fingerprint(fp string) string
}

// Service менеджер пробных периодов.
type Service struct {
	log     *slog.Logger
	repo    Repository
	hasher  FingerprintHasher
	events  *events.Notifier
	metrics *metrics.Metrics
	now     func() time.Time
}

// New создаёт менеджер пробных периодов. events и metrics могут быть nil.
func New(log *slog.Logger, repo Repository, h FingerprintHasher, n *events.Notifier, m *metrics.Metrics) *Service {
	return &Service{log: log, repo: repo, hasher: h, events: n, metrics: m, now: time.Now}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start запускает пробный период устройства. Повторный вызов с тем же отпечатком
// возвращает то же устройство с теми же границами.
func (s *Service) Start(ctx context.Context, fingerprint string) (*models.TrialView, error) {
	const op = "trial.Start"

	fp, err := models.NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hash := s.hasher.Fingerprint(fp)

	existing, err := s.repo.GetDeviceByHash(ctx, hash)
	switch {
	case err == nil:
		s.metrics.TrialStarted("existing")
		return s.view(existing), nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	start, end := now, now.Add(models.TrialLength)
	d := &models.Device{
		ID:              uuid.NewString(),
		FingerprintHash: hash,
		TrialStart:      start,
		TrialEnd:        end,
		Status:          models.StatusTrial,
		CreatedAt:       now,
	}
	e := &models.Entitlement{
		ID:         uuid.NewString(),
		DeviceID:   &d.ID,
		PlanID:     models.TrialPlanID,
		Status:     models.StatusTrial,
		TrialStart: &start,
		TrialEnd:   &end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	got, created, err := s.repo.CreateTrialDevice(ctx, d, e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !created {
		s.metrics.TrialStarted("existing")
		return s.view(got), nil
	}

	s.metrics.TrialStarted("created")
	s.log.Info("trial started", slog.String("op", op), slog.String("device_id", got.ID))
	s.events.EntitlementChanged(ctx, e, models.SourceTrial, now)
	return s.view(got), nil
}

// FindDevice возвращает устройство по отпечатку.
func (s *Service) FindDevice(ctx context.Context, fingerprint string) (*models.Device, error) {
	const op = "trial.FindDevice"

	fp, err := models.NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d, err := s.repo.GetDeviceByHash(ctx, s.hasher.Fingerprint(fp))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

func (s *Service) view(d *models.Device) *models.TrialView {
	now := s.now()
	status := models.StatusTrial
	if !now.Before(d.TrialEnd) {
		status = models.StatusExpired
	}
	end := d.TrialEnd
	return &models.TrialView{
		ID:                 d.ID,
		TrialStart:         d.TrialStart,
		TrialEnd:           d.TrialEnd,
		Status:             status,
		IsTrialActive:      status == models.StatusTrial,
		TrialDaysRemaining: entitlement.DaysRemaining(&end, now),
	}
}
