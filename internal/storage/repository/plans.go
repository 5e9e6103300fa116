package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

const planColumns = `key, price_id, name, description, amount, currency, billing_interval`

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var p models.Plan
	if err := row.Scan(&p.Key, &p.PriceID, &p.Name, &p.Description, &p.Amount, &p.Currency, &p.Interval); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans возвращает каталог тарифов.
func (s *Storage) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storage.ListPlans"

	rows, err := s.q(ctx).Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY amount, key`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetPlanByKey возвращает тариф по ключу.
func (s *Storage) GetPlanByKey(ctx context.Context, key string) (*models.Plan, error) {
	return s.getPlan(ctx, "storage.GetPlanByKey", "key", key)
}

// GetPlanByPriceID возвращает тариф по идентификатору цены биллинга.
func (s *Storage) GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	return s.getPlan(ctx, "storage.GetPlanByPriceID", "price_id", priceID)
}

func (s *Storage) getPlan(ctx context.Context, op, column, value string) (*models.Plan, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE `+column+` = $1`, value)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
