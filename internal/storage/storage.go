// Package storage описывает хранилище entitlement. Реализации: repository (PostgreSQL)
// и memory (в памяти процесса, для тестов и локального запуска).
package storage

import (
	"context"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
)

// Store полный набор операций хранилища.
//
// InTx выполняет fn в одной транзакции: вложенные вызовы методов с переданным
// контекстом видят и фиксируют изменения атомарно. Вложенный InTx присоединяется
// к внешней транзакции.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateTrialDevice(ctx context.Context, d *models.Device, e *models.Entitlement) (*models.Device, bool, error)
	GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error)
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)
	SetDeviceLinkedAccount(ctx context.Context, deviceID, accountID string) error

	GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error)
	GetEntitlementBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Entitlement, error)
	CreateEntitlement(ctx context.Context, e *models.Entitlement) error
	ActivateEntitlement(ctx context.Context, id, planID string, at time.Time) error
	BackfillEntitlementTrial(ctx context.Context, id string, start, end time.Time, at time.Time) (bool, error)
	ClaimEntitlement(ctx context.Context, id, accountID string, at time.Time) (bool, error)
	AttachBilling(ctx context.Context, id string, ref models.BillingRef, at time.Time) (bool, error)
	UpsertBillingEntitlement(ctx context.Context, e *models.Entitlement) (*models.Entitlement, error)
	UpdateStatusBySubscriptionID(ctx context.Context, upd models.BillingUpdate) (*models.Entitlement, error)

	CreateLicenseKeys(ctx context.Context, keys []*models.LicenseKey) error
	GetLicenseKeyByHash(ctx context.Context, keyHash string) (*models.LicenseKey, error)
	ClaimLicenseKey(ctx context.Context, id string, target models.Identity, at time.Time) (bool, error)
	RevokeLicenseKey(ctx context.Context, id string) (bool, error)
	ListLicenseKeys(ctx context.Context, filter models.LicenseFilter) ([]*models.LicenseKey, error)

	ListPlans(ctx context.Context) ([]*models.Plan, error)
	GetPlanByKey(ctx context.Context, key string) (*models.Plan, error)
	GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error)

	Ping(ctx context.Context) error
	Close()
}
