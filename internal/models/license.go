package models

import "time"

// RevokedSentinel значение redeemed_at, которым помечается отозванный ключ без привязки.
var RevokedSentinel = time.Unix(0, 0).UTC()

// LicenseKey погашаемый лицензионный ключ. Открытый текст ключа не хранится.
type LicenseKey struct {
	ID           string     `json:"id"`
	KeyHash      string     `json:"-"`
	PlanID       string     `json:"plan_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	SingleUse    bool       `json:"single_use"`
	Issuer       string     `json:"issuer,omitempty"`
	BoundAccount *string    `json:"bound_account,omitempty"`
	BoundDevice  *string    `json:"bound_device,omitempty"`
	RedeemedAt   *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Redeemed сообщает, что ключ погашен или отозван.
func (k *LicenseKey) Redeemed() bool { return k.RedeemedAt != nil }

// Revoked сообщает, что ключ отозван (sentinel без привязки).
func (k *LicenseKey) Revoked() bool {
	return k.RedeemedAt != nil && k.RedeemedAt.Equal(RevokedSentinel) &&
		k.BoundAccount == nil && k.BoundDevice == nil
}

// Expired сообщает, что срок действия ключа истёк к моменту now.
func (k *LicenseKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// IsValidForRedemption производный предикат, не хранится.
func (k *LicenseKey) IsValidForRedemption(now time.Time) bool {
	return !k.Redeemed() && !k.Expired(now)
}

// GenerateOptions параметры пакетной генерации ключей.
type GenerateOptions struct {
	ExpiresAt *time.Time
	SingleUse bool
	Issuer    string
}

// LicenseBatch метаданные сгенерированного пакета.
type LicenseBatch struct {
	PlanID    string        `json:"plan_id"`
	Count     int           `json:"count"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	SingleUse bool          `json:"single_use"`
	Issuer    string        `json:"issuer,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Keys      []*LicenseKey `json:"-"`
}

// GeneratedKeys открытые ключи (показываются один раз) и метаданные пакета.
type GeneratedKeys struct {
	Keys     []string     `json:"keys"`
	Metadata LicenseBatch `json:"metadata"`
}

// RedeemResult результат успешного погашения.
type RedeemResult struct {
	PlanID    string     `json:"plan_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	BoundTo   BoundTo    `json:"bound_to"`
}

// LicenseFilter параметры выборки ключей для администратора.
type LicenseFilter struct {
	PlanID   string
	Redeemed *bool
	Limit    int
	Offset   int
}
