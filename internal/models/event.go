package models

import "time"

// Источники изменения entitlement.
const (
	SourceTrial   = "trial"
	SourceLicense = "license"
	SourceBilling = "billing"
	SourceLink    = "link"
)

// EntitlementChanged событие, публикуемое после каждого зафиксированного изменения entitlement.
type EntitlementChanged struct {
	EntitlementID string    `json:"entitlement_id"`
	Owner         BoundTo   `json:"owner"`
	PlanID        string    `json:"plan_id"`
	Status        Status    `json:"status"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEntitlementChanged собирает событие из записи entitlement.
func NewEntitlementChanged(e *Entitlement, source string, at time.Time) EntitlementChanged {
	return EntitlementChanged{
		EntitlementID: e.ID,
		Owner:         e.Owner().Bound(),
		PlanID:        e.PlanID,
		Status:        e.Status,
		Source:        source,
		OccurredAt:    at.UTC(),
	}
}
