// Package billing обрабатывает webhook-события биллинг-провайдера.
//
// Подпись проверяется до любой обработки. Каждый переход идемпотентен: повтор
// события не создаёт дубликатов записей. Ошибки конкретного обработчика (запись
// не найдена, нет metadata) логируются и не считаются фатальными; ошибки хранилища
// возвращаются, чтобы провайдер доставил событие повторно.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	pp "github.com/magabrotheeeer/paywall/internal/paymentprovider"
	"github.com/magabrotheeeer/paywall/internal/services/events"
)

// FallbackPlan тариф записи, если сессия оплаты не передала plan_id.
const FallbackPlan = "subscription"

// Repository определяет методы хранилища для событий биллинга.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error)
	GetEntitlementBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Entitlement, error)
	AttachBilling(ctx context.Context, id string, ref models.BillingRef, at time.Time) (bool, error)
	UpsertBillingEntitlement(ctx context.Context, e *models.Entitlement) (*models.Entitlement, error)
	UpdateStatusBySubscriptionID(ctx context.Context, upd models.BillingUpdate) (*models.Entitlement, error)
}

// EventVerifier проверяет подпись и разбирает событие.
type EventVerifier interface {
	ConstructEvent(payload []byte, header string) (*pp.Event, error)
}

// Исходы обработки события для метрик.
const (
	outcomeApplied  = "applied"
	outcomeIgnored  = "ignored"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// Service обработчик событий биллинга.
type Service struct {
	log      *slog.Logger
	repo     Repository
	verifier EventVerifier
	events   *events.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New создаёт обработчик событий биллинга.
func New(log *slog.Logger, repo Repository, v EventVerifier, n *events.Notifier, m *metrics.Metrics) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		verifier: v,
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

// Process проверяет подпись события и применяет его.
func (s *Service) Process(ctx context.Context, payload []byte, signature string) error {
	const op = "billing.Process"

	event, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidSignature) {
			s.metrics.BillingEvent("unknown", "invalid_signature")
			s.log.Warn("rejected webhook with invalid signature", slog.String("op", op))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type))

	var changed *models.Entitlement
	switch event.Type {
	case pp.EventCheckoutCompleted:
		changed, err = s.checkoutCompleted(ctx, log, event)
	case pp.EventSubscriptionCreated, pp.EventSubscriptionUpdated:
		changed, err = s.subscriptionChanged(ctx, event, false)
	case pp.EventSubscriptionDeleted:
		changed, err = s.subscriptionChanged(ctx, event, true)
	case pp.EventInvoicePaymentSucceeded, pp.EventInvoicePaid:
		changed, err = s.invoice(ctx, event, models.StatusActive)
	case pp.EventInvoicePaymentFailed:
		changed, err = s.invoice(ctx, event, models.StatusPastDue)
	default:
		s.metrics.BillingEvent(event.Type, outcomeIgnored)
		log.Debug("ignoring unsupported billing event")
		return nil
	}

	switch {
	case err == nil && changed == nil:
		s.metrics.BillingEvent(event.Type, outcomeIgnored)
		return nil
	case err == nil:
		s.metrics.BillingEvent(event.Type, outcomeApplied)
		log.Info("billing event applied",
			slog.String("entitlement_id", changed.ID),
			slog.String("status", changed.Status.String()))
		s.events.EntitlementChanged(ctx, changed, models.SourceBilling, s.now().UTC())
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrValidation):
		s.metrics.BillingEvent(event.Type, outcomeNotFound)
		log.Warn("billing event skipped", sl.Err(err))
		return nil
	}
	s.metrics.BillingEvent(event.Type, outcomeError)
	log.Error("failed to apply billing event", sl.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

// checkoutCompleted привязывает подписку к идентичности из metadata. Если у текущей
// записи нет подписки, ссылки биллинга присваиваются ей, и границы пробного периода
// сохраняются. Иначе создаётся запись, ключом которой служит id подписки.
func (s *Service) checkoutCompleted(ctx context.Context, log *slog.Logger, event *pp.Event) (*models.Entitlement, error) {
	var obj pp.CheckoutSessionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: malformed checkout session", errs.ErrValidation)
	}
	if obj.Subscription == "" {
		log.Info("checkout session without subscription", slog.String("session_id", obj.ID))
		return nil, nil
	}
	owner, err := models.ExactlyOne(obj.Metadata[pp.MetaAccountID], obj.Metadata[pp.MetaDeviceID])
	if err != nil {
		return nil, fmt.Errorf("checkout session %s: %w", obj.ID, err)
	}
	ref := models.BillingRef{
		CustomerID:     obj.Customer,
		SubscriptionID: obj.Subscription,
		PlanID:         obj.Metadata[pp.MetaPlanID],
	}
	now := s.now().UTC()

	var changed *models.Entitlement
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.GetEntitlementBySubscriptionID(ctx, ref.SubscriptionID)
		if err == nil {
			return nil // повтор события
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		cur, err := s.repo.GetCurrentEntitlement(ctx, owner)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if cur != nil && !cur.BillingManaged() {
			ok, err := s.repo.AttachBilling(ctx, cur.ID, ref, now)
			if err != nil {
				return err
			}
			if ok {
				applyRef(cur, ref, now)
				changed = cur
				return nil
			}
		}

		account, device := owner.Columns()
		e := &models.Entitlement{
			ID:                    uuid.NewString(),
			AccountID:             account,
			DeviceID:              device,
			PlanID:                ref.PlanID,
			Status:                models.StatusActive,
			BillingSubscriptionID: &ref.SubscriptionID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if ref.CustomerID != "" {
			e.BillingCustomerID = &ref.CustomerID
		}
		if cur != nil {
			if e.PlanID == "" {
				e.PlanID = cur.PlanID
			}
			e.TrialStart, e.TrialEnd = cur.TrialStart, cur.TrialEnd
		}
		if e.PlanID == "" {
			e.PlanID = FallbackPlan
		}
		changed, err = s.repo.UpsertBillingEntitlement(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func applyRef(e *models.Entitlement, ref models.BillingRef, at time.Time) {
	if ref.CustomerID != "" {
		e.BillingCustomerID = &ref.CustomerID
	}
	e.BillingSubscriptionID = &ref.SubscriptionID
	if ref.PlanID != "" {
		e.PlanID = ref.PlanID
	}
	e.Status = models.StatusActive
	e.UpdatedAt = at
}

func (s *Service) subscriptionChanged(ctx context.Context, event *pp.Event, deleted bool) (*models.Entitlement, error) {
	var obj pp.SubscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: malformed subscription", errs.ErrValidation)
	}
	if obj.ID == "" {
		return nil, fmt.Errorf("%w: subscription id is missing", errs.ErrValidation)
	}

	upd := models.BillingUpdate{
		SubscriptionID: obj.ID,
		Status:         models.MapBillingStatus(obj.Status),
		TrialStart:     unixTime(obj.TrialStart),
		TrialEnd:       unixTime(obj.TrialEnd),
		At:             s.now().UTC(),
	}
	if deleted {
		upd.Status = models.StatusCanceled
	}
	return s.repo.UpdateStatusBySubscriptionID(ctx, upd)
}

func (s *Service) invoice(ctx context.Context, event *pp.Event, status models.Status) (*models.Entitlement, error) {
	var obj pp.InvoiceObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: malformed invoice", errs.ErrValidation)
	}
	if obj.Subscription == "" {
		return nil, nil
	}
	return s.repo.UpdateStatusBySubscriptionID(ctx, models.BillingUpdate{
		SubscriptionID: obj.Subscription,
		Status:         status,
		At:             s.now().UTC(),
	})
}

func unixTime(v *int64) *time.Time {
	if v == nil || *v <= 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
