// Package models содержит доменные структуры paywall: устройства, записи прав доступа,
// лицензионные ключи, тарифы, а также единый словарь статусов и тип идентичности.
package models

import "strings"

// Status единый внутренний статус доступа.
type Status string

const (
	StatusNone     Status = "none"
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// billingStatuses — единственная таблица соответствия статусов биллинга внутренним статусам.
var billingStatuses = map[string]Status{
	"active":             StatusActive,
	"past_due":           StatusPastDue,
	"canceled":           StatusCanceled,
	"incomplete":         StatusExpired,
	"incomplete_expired": StatusExpired,
	"trialing":           StatusTrial,
	"unpaid":             StatusExpired,
}

// MapBillingStatus переводит статус подписки биллинг-провайдера во внутренний статус.
// Неизвестные значения считаются истёкшими.
func MapBillingStatus(external string) Status {
	if s, ok := billingStatuses[strings.ToLower(strings.TrimSpace(external))]; ok {
		return s
	}
	return StatusExpired
}

// ParseStatus разбирает сохранённое значение статуса.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusNone, StatusTrial, StatusActive, StatusPastDue, StatusCanceled, StatusExpired:
		return st, true
	}
	return "", false
}

// IsActive сообщает, даёт ли статус доступ к продукту.
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusTrial
}

func (s Status) String() string { return string(s) }
