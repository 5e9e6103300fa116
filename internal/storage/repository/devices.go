package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

const deviceColumns = `id, fingerprint_hash, trial_start, trial_end, linked_account, status, created_at`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var (
		d      models.Device
		status string
	)
	if err := row.Scan(&d.ID, &d.FingerprintHash, &d.TrialStart, &d.TrialEnd,
		&d.LinkedAccount, &status, &d.CreatedAt); err != nil {
		return nil, err
	}
	st, ok := models.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown device status %q", status)
	}
	d.Status = st
	return &d, nil
}

// CreateTrialDevice атомарно создаёт устройство и его пробную запись entitlement.
// Если устройство с таким хэшем уже есть, возвращает существующее и created=false.
func (s *Storage) CreateTrialDevice(ctx context.Context, d *models.Device, e *models.Entitlement) (*models.Device, bool, error) {
	const op = "storage.CreateTrialDevice"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var (
		result  *models.Device
		created bool
	)
	err := s.InTx(ctx, func(ctx context.Context) error {
		tag, err := s.q(ctx).Exec(ctx, `
			INSERT INTO devices (id, fingerprint_hash, trial_start, trial_end, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (fingerprint_hash) DO NOTHING`,
			d.ID, d.FingerprintHash, d.TrialStart, d.TrialEnd, string(d.Status), d.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			existing, err := s.GetDeviceByHash(ctx, d.FingerprintHash)
			if err != nil {
				return err
			}
			result = existing
			return nil
		}
		if err := s.CreateEntitlement(ctx, e); err != nil {
			return err
		}
		result, created = d, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, created, nil
}

// GetDeviceByHash возвращает устройство по ключевому хэшу отпечатка.
func (s *Storage) GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error) {
	const op = "storage.GetDeviceByHash"

	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE fingerprint_hash = $1`, fingerprintHash)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrDeviceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// GetDeviceByID возвращает устройство по идентификатору.
func (s *Storage) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	const op = "storage.GetDeviceByID"

	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrDeviceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// SetDeviceLinkedAccount связывает устройство с аккаунтом только если оно ещё не связано.
func (s *Storage) SetDeviceLinkedAccount(ctx context.Context, deviceID, accountID string) error {
	const op = "storage.SetDeviceLinkedAccount"

	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE devices SET linked_account = $2 WHERE id = $1 AND linked_account IS NULL`,
		deviceID, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyLinked)
	}
	return nil
}
