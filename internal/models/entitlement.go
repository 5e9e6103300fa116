package models

import "time"

// Entitlement запись прав доступа устройства или аккаунта (строка entitlements).
type Entitlement struct {
	ID                    string
	AccountID             *string
	DeviceID              *string
	PlanID                string
	Status                Status
	TrialStart            *time.Time
	TrialEnd              *time.Time
	BillingCustomerID     *string
	BillingSubscriptionID *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Owner возвращает владельца записи. Аккаунт имеет приоритет: строка устройства,
// присвоенная аккаунту при связывании, принадлежит аккаунту.
func (e *Entitlement) Owner() Identity {
	if e.AccountID != nil && *e.AccountID != "" {
		return AccountIdentity(*e.AccountID)
	}
	if e.DeviceID != nil && *e.DeviceID != "" {
		return DeviceIdentity(*e.DeviceID)
	}
	return Identity{}
}

// HasTrialBounds сообщает, заданы ли границы пробного периода.
func (e *Entitlement) HasTrialBounds() bool {
	return e.TrialStart != nil && e.TrialEnd != nil
}

// BillingManaged сообщает, связана ли запись с подпиской биллинга.
func (e *Entitlement) BillingManaged() bool {
	return e.BillingSubscriptionID != nil && *e.BillingSubscriptionID != ""
}

// EntitlementView вычисленное состояние доступа для идентичности.
type EntitlementView struct {
	Status             Status     `json:"status"`
	Plan               string     `json:"plan,omitempty"`
	TrialStart         *time.Time `json:"trial_start,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	IsActive           bool       `json:"is_active"`
	TrialDaysRemaining int        `json:"trial_days_remaining"`
}

// BillingUpdate изменение записи по событию биллинга.
type BillingUpdate struct {
	SubscriptionID string
	Status         Status
	TrialStart     *time.Time
	TrialEnd       *time.Time
	At             time.Time
}

// BillingRef ссылки биллинга, присваиваемые записи после оплаты.
type BillingRef struct {
	CustomerID     string
	SubscriptionID string
	PlanID         string
}
