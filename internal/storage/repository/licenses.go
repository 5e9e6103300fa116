package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

const licenseColumns = `id, key_hash, plan_id, expires_at, single_use, issuer,
	bound_account, bound_device, redeemed_at, created_at`

func scanLicenseKey(row pgx.Row) (*models.LicenseKey, error) {
	var k models.LicenseKey
	if err := row.Scan(&k.ID, &k.KeyHash, &k.PlanID, &k.ExpiresAt, &k.SingleUse, &k.Issuer,
		&k.BoundAccount, &k.BoundDevice, &k.RedeemedAt, &k.CreatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateLicenseKeys сохраняет пакет ключей в одной транзакции.
func (s *Storage) CreateLicenseKeys(ctx context.Context, keys []*models.LicenseKey) error {
	const op = "storage.CreateLicenseKeys"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.InTx(ctx, func(ctx context.Context) error {
		for _, k := range keys {
			_, err := s.q(ctx).Exec(ctx, `
				INSERT INTO license_keys (id, key_hash, plan_id, expires_at, single_use, issuer, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				k.ID, k.KeyHash, k.PlanID, k.ExpiresAt, k.SingleUse, k.Issuer, k.CreatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return errs.ErrAlreadyExists
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetLicenseKeyByHash возвращает ключ по ключевому хэшу.
func (s *Storage) GetLicenseKeyByHash(ctx context.Context, keyHash string) (*models.LicenseKey, error) {
	const op = "storage.GetLicenseKeyByHash"

	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM license_keys WHERE key_hash = $1`, keyHash)
	k, err := scanLicenseKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return k, nil
}

// ClaimLicenseKey помечает ключ погашенным и привязывает к цели.
// Возвращает false, если ключ уже погашен или отозван.
func (s *Storage) ClaimLicenseKey(ctx context.Context, id string, target models.Identity, at time.Time) (bool, error) {
	const op = "storage.ClaimLicenseKey"

	account, device := target.Columns()
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE license_keys SET redeemed_at = $2, bound_account = $3, bound_device = $4
		WHERE id = $1 AND redeemed_at IS NULL`,
		id, at, account, device)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeLicenseKey помечает непогашенный ключ отозванным.
func (s *Storage) RevokeLicenseKey(ctx context.Context, id string) (bool, error) {
	const op = "storage.RevokeLicenseKey"

	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE license_keys SET redeemed_at = $2 WHERE id = $1 AND redeemed_at IS NULL`,
		id, models.RevokedSentinel)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListLicenseKeys возвращает ключи по фильтру, новые первыми.
func (s *Storage) ListLicenseKeys(ctx context.Context, filter models.LicenseFilter) ([]*models.LicenseKey, error) {
	const op = "storage.ListLicenseKeys"

	var (
		conds []string
		args  []any
	)
	if filter.PlanID != "" {
		args = append(args, filter.PlanID)
		conds = append(conds, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if filter.Redeemed != nil {
		if *filter.Redeemed {
			conds = append(conds, "redeemed_at IS NOT NULL")
		} else {
			conds = append(conds, "redeemed_at IS NULL")
		}
	}

	query := `SELECT ` + licenseColumns + ` FROM license_keys`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.LicenseKey
	for rows.Next() {
		k, err := scanLicenseKey(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
