// Package memory реализует хранилище entitlement в памяти процесса.
// Все операции сериализуются одним мьютексом; InTx удерживает его на время fn
// и откатывает изменения при ошибке. Используется в тестах и при storage.driver=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

type txKey struct{}

type data struct {
	devices      map[string]*models.Device
	deviceByHash map[string]string
	entitlements []*models.Entitlement
	licenses     map[string]*models.LicenseKey
	licenseByHsh map[string]string
	plans        map[string]*models.Plan
}

// Storage хранилище в памяти.
type Storage struct {
	mu sync.Mutex
	d  *data
}

// DefaultPlans возвращает каталог, совпадающий с начальными данными миграций.
func DefaultPlans() []*models.Plan {
	return []*models.Plan{
		{Key: "pro_monthly", PriceID: "price_pro_monthly", Name: "Pro (monthly)",
			Description: "All features, billed monthly", Amount: 999, Currency: "usd", Interval: "month"},
		{Key: "pro_yearly", PriceID: "price_pro_yearly", Name: "Pro (yearly)",
			Description: "All features, billed yearly", Amount: 9999, Currency: "usd", Interval: "year"},
	}
}

// New создаёт пустое хранилище с указанным каталогом тарифов.
func New(plans ...*models.Plan) *Storage {
	d := &data{
		devices:      make(map[string]*models.Device),
		deviceByHash: make(map[string]string),
		licenses:     make(map[string]*models.LicenseKey),
		licenseByHsh: make(map[string]string),
		plans:        make(map[string]*models.Plan),
	}
	for _, p := range plans {
		cp := *p
		d.plans[p.Key] = &cp
	}
	return &Storage{d: d}
}

func (s *Storage) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx выполняет fn атомарно. При ошибке состояние восстанавливается.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// Ping всегда успешен.
func (s *Storage) Ping(context.Context) error { return nil }

// Close ничего не делает.
func (s *Storage) Close() {}

func (d *data) clone() *data {
	c := &data{
		devices:      make(map[string]*models.Device, len(d.devices)),
		deviceByHash: make(map[string]string, len(d.deviceByHash)),
		entitlements: make([]*models.Entitlement, 0, len(d.entitlements)),
		licenses:     make(map[string]*models.LicenseKey, len(d.licenses)),
		licenseByHsh: make(map[string]string, len(d.licenseByHsh)),
		plans:        make(map[string]*models.Plan, len(d.plans)),
	}
	for k, v := range d.devices {
		c.devices[k] = copyDevice(v)
	}
	for k, v := range d.deviceByHash {
		c.deviceByHash[k] = v
	}
	for _, e := range d.entitlements {
		c.entitlements = append(c.entitlements, copyEntitlement(e))
	}
	for k, v := range d.licenses {
		c.licenses[k] = copyLicense(v)
	}
	for k, v := range d.licenseByHsh {
		c.licenseByHsh[k] = v
	}
	for k, v := range d.plans {
		cp := *v
		c.plans[k] = &cp
	}
	return c
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyDevice(d *models.Device) *models.Device {
	cp := *d
	cp.LinkedAccount = copyStr(d.LinkedAccount)
	return &cp
}

func copyEntitlement(e *models.Entitlement) *models.Entitlement {
	cp := *e
	cp.AccountID = copyStr(e.AccountID)
	cp.DeviceID = copyStr(e.DeviceID)
	cp.TrialStart = copyTime(e.TrialStart)
	cp.TrialEnd = copyTime(e.TrialEnd)
	cp.BillingCustomerID = copyStr(e.BillingCustomerID)
	cp.BillingSubscriptionID = copyStr(e.BillingSubscriptionID)
	return &cp
}

func copyLicense(k *models.LicenseKey) *models.LicenseKey {
	cp := *k
	cp.ExpiresAt = copyTime(k.ExpiresAt)
	cp.BoundAccount = copyStr(k.BoundAccount)
	cp.BoundDevice = copyStr(k.BoundDevice)
	cp.RedeemedAt = copyTime(k.RedeemedAt)
	return &cp
}

// CreateTrialDevice создаёт устройство и пробную запись, если хэш ещё не встречался.
func (s *Storage) CreateTrialDevice(ctx context.Context, d *models.Device, e *models.Entitlement) (*models.Device, bool, error) {
	const op = "memory.CreateTrialDevice"
	unlock := s.lock(ctx)
	defer unlock()

	if id, ok := s.d.deviceByHash[d.FingerprintHash]; ok {
		return copyDevice(s.d.devices[id]), false, nil
	}
	if _, ok := s.d.devices[d.ID]; ok {
		return nil, false, fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	}
	s.d.devices[d.ID] = copyDevice(d)
	s.d.deviceByHash[d.FingerprintHash] = d.ID
	s.d.entitlements = append(s.d.entitlements, copyEntitlement(e))
	return copyDevice(d), true, nil
}

func (s *Storage) GetDeviceByHash(ctx context.Context, fingerprintHash string) (*models.Device, error) {
	const op = "memory.GetDeviceByHash"
	unlock := s.lock(ctx)
	defer unlock()

	id, ok := s.d.deviceByHash[fingerprintHash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrDeviceNotFound)
	}
	return copyDevice(s.d.devices[id]), nil
}

func (s *Storage) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	const op = "memory.GetDeviceByID"
	unlock := s.lock(ctx)
	defer unlock()

	d, ok := s.d.devices[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrDeviceNotFound)
	}
	return copyDevice(d), nil
}

func (s *Storage) SetDeviceLinkedAccount(ctx context.Context, deviceID, accountID string) error {
	const op = "memory.SetDeviceLinkedAccount"
	unlock := s.lock(ctx)
	defer unlock()

	d, ok := s.d.devices[deviceID]
	if !ok || d.LinkedAccount != nil {
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyLinked)
	}
	d.LinkedAccount = &accountID
	return nil
}

func (s *Storage) findEntitlement(id string) *models.Entitlement {
	for _, e := range s.d.entitlements {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *Storage) findBySubscription(subscriptionID string) *models.Entitlement {
	for _, e := range s.d.entitlements {
		if e.BillingSubscriptionID != nil && *e.BillingSubscriptionID == subscriptionID {
			return e
		}
	}
	return nil
}

// GetCurrentEntitlement выбирает самую новую запись по created_at, затем updated_at,
// затем по порядку вставки.
func (s *Storage) GetCurrentEntitlement(ctx context.Context, owner models.Identity) (*models.Entitlement, error) {
	const op = "memory.GetCurrentEntitlement"
	if owner.IsZero() {
		return nil, fmt.Errorf("%s: %w: empty identity", op, errs.ErrValidation)
	}
	unlock := s.lock(ctx)
	defer unlock()

	var current *models.Entitlement
	for _, e := range s.d.entitlements {
		var col *string
		if owner.Kind() == models.KindAccount {
			col = e.AccountID
		} else {
			col = e.DeviceID
		}
		if col == nil || *col != owner.ID() {
			continue
		}
		if current == nil ||
			!e.CreatedAt.Before(current.CreatedAt) &&
				(e.CreatedAt.After(current.CreatedAt) || !e.UpdatedAt.Before(current.UpdatedAt)) {
			current = e
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return copyEntitlement(current), nil
}

func (s *Storage) GetEntitlementBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Entitlement, error) {
	const op = "memory.GetEntitlementBySubscriptionID"
	unlock := s.lock(ctx)
	defer unlock()

	e := s.findBySubscription(subscriptionID)
	if e == nil {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return copyEntitlement(e), nil
}

func (s *Storage) CreateEntitlement(ctx context.Context, e *models.Entitlement) error {
	const op = "memory.CreateEntitlement"
	unlock := s.lock(ctx)
	defer unlock()

	if s.findEntitlement(e.ID) != nil {
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	}
	if e.BillingManaged() && s.findBySubscription(*e.BillingSubscriptionID) != nil {
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	}
	s.d.entitlements = append(s.d.entitlements, copyEntitlement(e))
	return nil
}

func (s *Storage) ActivateEntitlement(ctx context.Context, id, planID string, at time.Time) error {
	const op = "memory.ActivateEntitlement"
	unlock := s.lock(ctx)
	defer unlock()

	e := s.findEntitlement(id)
	if e == nil {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	e.Status = models.StatusActive
	e.PlanID = planID
	e.UpdatedAt = at
	return nil
}

func (s *Storage) BackfillEntitlementTrial(ctx context.Context, id string, start, end time.Time, at time.Time) (bool, error) {
	unlock := s.lock(ctx)
	defer unlock()

	e := s.findEntitlement(id)
	if e == nil || e.TrialStart != nil {
		return false, nil
	}
	e.TrialStart = &start
	e.TrialEnd = &end
	e.UpdatedAt = at
	return true, nil
}

func (s *Storage) ClaimEntitlement(ctx context.Context, id, accountID string, at time.Time) (bool, error) {
	unlock := s.lock(ctx)
	defer unlock()

	e := s.findEntitlement(id)
	if e == nil || e.AccountID != nil {
		return false, nil
	}
	e.AccountID = &accountID
	e.UpdatedAt = at
	return true, nil
}

func (s *Storage) AttachBilling(ctx context.Context, id string, ref models.BillingRef, at time.Time) (bool, error) {
	const op = "memory.AttachBilling"
	unlock := s.lock(ctx)
	defer unlock()

	e := s.findEntitlement(id)
	if e == nil {
		return false, nil
	}
	if e.BillingSubscriptionID != nil && *e.BillingSubscriptionID != ref.SubscriptionID {
		return false, nil
	}
	if other := s.findBySubscription(ref.SubscriptionID); other != nil && other != e {
		return false, fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	}
	if ref.CustomerID != "" {
		e.BillingCustomerID = copyStr(&ref.CustomerID)
	}
	e.BillingSubscriptionID = copyStr(&ref.SubscriptionID)
	if ref.PlanID != "" {
		e.PlanID = ref.PlanID
	}
	e.Status = models.StatusActive
	e.UpdatedAt = at
	return true, nil
}

func (s *Storage) UpsertBillingEntitlement(ctx context.Context, e *models.Entitlement) (*models.Entitlement, error) {
	const op = "memory.UpsertBillingEntitlement"
	if !e.BillingManaged() {
		return nil, fmt.Errorf("%s: %w: subscription id is required", op, errs.ErrValidation)
	}
	unlock := s.lock(ctx)
	defer unlock()

	if existing := s.findBySubscription(*e.BillingSubscriptionID); existing != nil {
		existing.Status = e.Status
		existing.PlanID = e.PlanID
		if e.BillingCustomerID != nil {
			existing.BillingCustomerID = copyStr(e.BillingCustomerID)
		}
		existing.UpdatedAt = e.UpdatedAt
		return copyEntitlement(existing), nil
	}
	s.d.entitlements = append(s.d.entitlements, copyEntitlement(e))
	return copyEntitlement(e), nil
}

func (s *Storage) UpdateStatusBySubscriptionID(ctx context.Context, upd models.BillingUpdate) (*models.Entitlement, error) {
	const op = "memory.UpdateStatusBySubscriptionID"
	unlock := s.lock(ctx)
	defer unlock()

	e := s.findBySubscription(upd.SubscriptionID)
	if e == nil {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	e.Status = upd.Status
	if e.TrialStart == nil {
		e.TrialStart = copyTime(upd.TrialStart)
	}
	if e.TrialEnd == nil {
		e.TrialEnd = copyTime(upd.TrialEnd)
	}
	e.UpdatedAt = upd.At
	return copyEntitlement(e), nil
}

func (s *Storage) CreateLicenseKeys(ctx context.Context, keys []*models.LicenseKey) error {
	const op = "memory.CreateLicenseKeys"
	unlock := s.lock(ctx)
	defer unlock()

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := s.d.licenseByHsh[k.KeyHash]; ok || seen[k.KeyHash] {
			return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
		}
		seen[k.KeyHash] = true
	}
	for _, k := range keys {
		s.d.licenses[k.ID] = copyLicense(k)
		s.d.licenseByHsh[k.KeyHash] = k.ID
	}
	return nil
}

func (s *Storage) GetLicenseKeyByHash(ctx context.Context, keyHash string) (*models.LicenseKey, error) {
	const op = "memory.GetLicenseKeyByHash"
	unlock := s.lock(ctx)
	defer unlock()

	id, ok := s.d.licenseByHsh[keyHash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return copyLicense(s.d.licenses[id]), nil
}

func (s *Storage) ClaimLicenseKey(ctx context.Context, id string, target models.Identity, at time.Time) (bool, error) {
	unlock := s.lock(ctx)
	defer unlock()

	k, ok := s.d.licenses[id]
	if !ok || k.RedeemedAt != nil {
		return false, nil
	}
	k.RedeemedAt = &at
	k.BoundAccount, k.BoundDevice = target.Columns()
	return true, nil
}

func (s *Storage) RevokeLicenseKey(ctx context.Context, id string) (bool, error) {
	unlock := s.lock(ctx)
	defer unlock()

	k, ok := s.d.licenses[id]
	if !ok || k.RedeemedAt != nil {
		return false, nil
	}
	sentinel := models.RevokedSentinel
	k.RedeemedAt = &sentinel
	return true, nil
}

func (s *Storage) ListLicenseKeys(ctx context.Context, filter models.LicenseFilter) ([]*models.LicenseKey, error) {
	unlock := s.lock(ctx)
	defer unlock()

	var all []*models.LicenseKey
	for _, k := range s.d.licenses {
		if filter.PlanID != "" && k.PlanID != filter.PlanID {
			continue
		}
		if filter.Redeemed != nil && k.Redeemed() != *filter.Redeemed {
			continue
		}
		all = append(all, copyLicense(k))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (s *Storage) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	unlock := s.lock(ctx)
	defer unlock()

	plans := make([]*models.Plan, 0, len(s.d.plans))
	for _, p := range s.d.plans {
		cp := *p
		plans = append(plans, &cp)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Amount != plans[j].Amount {
			return plans[i].Amount < plans[j].Amount
		}
		return plans[i].Key < plans[j].Key
	})
	return plans, nil
}

func (s *Storage) GetPlanByKey(ctx context.Context, key string) (*models.Plan, error) {
	const op = "memory.GetPlanByKey"
	unlock := s.lock(ctx)
	defer unlock()

	p, ok := s.d.plans[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Storage) GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	const op = "memory.GetPlanByPriceID"
	unlock := s.lock(ctx)
	defer unlock()

	for _, p := range s.d.plans {
		if p.PriceID == priceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, errs.ErrNotFound)
}
