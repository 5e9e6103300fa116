package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

const entitlementColumns = `id, account_id, device_id, plan_id, status, trial_start, trial_end,
	billing_customer_id, billing_subscription_id, created_at, updated_at`

func scanEntitlement(row pgx.Row) (*models.Entitlement, error) {
	var (
		e      models.Entitlement
		status string
	)
	if err := row.Scan(&e.ID, &e.AccountID, &e.DeviceID, &e.PlanID, &status,
		&e.TrialStart, &e.TrialEnd, &e.BillingCustomerID, &e.BillingSubscriptionID,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	st, ok := models.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown entitlement status %q", status)
	}
	e.Status = st
	return &e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetCurrentEntitlement возвращает текущую запись владельца: самую новую по created_at,
// при равенстве по updated_at, затем по порядку вставки.
func (s *Storage) GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error) {
	const op = "storage.GetCurrentEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var column string
	switch owner.Kind() {
	case models.KindAccount:
		column = "account_id"
	case models.KindDevice:
		column = "device_id"
	default:
		return nil, fmt.Errorf("%s: %w: empty identity", op, errs.ErrValidation)
	}

	row := s.q(ctx).QueryRow(ctx, `SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE `+column+` = $1
		ORDER BY created_at DESC, updated_at DESC, seq DESC
		LIMIT 1`, owner.ID())
	e, err := scanEntitlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// GetEntitlementBySubscriptionID возвращает запись по идентификатору подписки биллинга.
func (s *Storage) GetEntitlementBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Entitlement, error) {
	const op = "storage.GetEntitlementBySubscriptionID"

	row := s.q(ctx).QueryRow(ctx, `SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE billing_subscription_id = $1`, subscriptionID)
	e, err := scanEntitlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// CreateEntitlement сохраняет новую запись.
func (s *Storage) CreateEntitlement(ctx context.Context, e *models.Entitlement) error {
	const op = "storage.CreateEntitlement"

	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO entitlements (id, account_id, device_id, plan_id, status, trial_start, trial_end,
			billing_customer_id, billing_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.AccountID, e.DeviceID, e.PlanID, string(e.Status), e.TrialStart, e.TrialEnd,
		e.BillingCustomerID, e.BillingSubscriptionID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActivateEntitlement переводит запись в active с указанным тарифом.
func (s *Storage) ActivateEntitlement(ctx context.Context, id, planID string, at time.Time) error {
	const op = "storage.ActivateEntitlement"

	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE entitlements SET status = 'active', plan_id = $2, updated_at = $3 WHERE id = $1`,
		id, planID, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return nil
}

// BackfillEntitlementTrial заполняет границы пробного периода, только если они пусты.
func (s *Storage) BackfillEntitlementTrial(ctx context.Context, id string, start, end time.Time, at time.Time) (bool, error) {
	const op = "storage.BackfillEntitlementTrial"

	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE entitlements SET trial_start = $2, trial_end = $3, updated_at = $4
		WHERE id = $1 AND trial_start IS NULL`,
		id, start, end, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimEntitlement присваивает запись устройства аккаунту, если у неё ещё нет аккаунта.
func (s *Storage) ClaimEntitlement(ctx context.Context, id, accountID string, at time.Time) (bool, error) {
	const op = "storage.ClaimEntitlement"

	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE entitlements SET account_id = $2, updated_at = $3
		WHERE id = $1 AND account_id IS NULL`,
		id, accountID, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AttachBilling присваивает записи ссылки биллинга и статус active. Запись с другой
// подпиской не изменяется. Границы пробного периода сохраняются.
func (s *Storage) AttachBilling(ctx context.Context, id string, ref models.BillingRef, at time.Time) (bool, error) {
	const op = "storage.AttachBilling"

	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE entitlements
		SET billing_customer_id = COALESCE($2, billing_customer_id),
			billing_subscription_id = $3,
			plan_id = COALESCE($4, plan_id),
			status = 'active',
			updated_at = $5
		WHERE id = $1 AND (billing_subscription_id IS NULL OR billing_subscription_id = $3)`,
		id, nullable(ref.CustomerID), ref.SubscriptionID, nullable(ref.PlanID), at)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertBillingEntitlement создаёт запись с подпиской или обновляет существующую с той же подпиской.
func (s *Storage) UpsertBillingEntitlement(ctx context.Context, e *models.Entitlement) (*models.Entitlement, error) {
	const op = "storage.UpsertBillingEntitlement"

	row := s.q(ctx).QueryRow(ctx, `
		INSERT INTO entitlements (id, account_id, device_id, plan_id, status, trial_start, trial_end,
			billing_customer_id, billing_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (billing_subscription_id) WHERE billing_subscription_id IS NOT NULL
		DO UPDATE SET
			status = EXCLUDED.status,
			plan_id = EXCLUDED.plan_id,
			billing_customer_id = COALESCE(EXCLUDED.billing_customer_id, entitlements.billing_customer_id),
			updated_at = EXCLUDED.updated_at
		RETURNING `+entitlementColumns,
		e.ID, e.AccountID, e.DeviceID, e.PlanID, string(e.Status), e.TrialStart, e.TrialEnd,
		e.BillingCustomerID, e.BillingSubscriptionID, e.CreatedAt, e.UpdatedAt)
	out, err := scanEntitlement(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// UpdateStatusBySubscriptionID меняет статус записи подписки. Границы пробного периода
// заполняются только если пусты и никогда не очищаются.
func (s *Storage) UpdateStatusBySubscriptionID(ctx context.Context, upd models.BillingUpdate) (*models.Entitlement, error) {
	const op = "storage.UpdateStatusBySubscriptionID"

	row := s.q(ctx).QueryRow(ctx, `
		UPDATE entitlements
		SET status = $2,
			trial_start = COALESCE(trial_start, $3),
			trial_end = COALESCE(trial_end, $4),
			updated_at = $5
		WHERE billing_subscription_id = $1
		RETURNING `+entitlementColumns,
		upd.SubscriptionID, string(upd.Status), upd.TrialStart, upd.TrialEnd, upd.At)
	e, err := scanEntitlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}
