package paymentprovider

import "encoding/json"

// Типы событий биллинга, которые обрабатывает сервис.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Ключи metadata, которыми сессия оплаты связывается с идентичностью.
const (
	MetaAccountID = "account_id"
	MetaDeviceID  = "device_id"
	MetaPlanID    = "plan_id"
)

// CheckoutSessionRequest параметры создания сессии оплаты подписки.
type CheckoutSessionRequest struct {
	PriceID           string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	CustomerEmail     string
	// TrialEnd — unix-время окончания пробного периода; 0 — без пробного периода.
	TrialEnd int64
	Metadata map[string]string
}

// CheckoutSession созданная сессия оплаты.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Event конверт события webhook.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSessionObject объект события checkout.session.completed.
type CheckoutSessionObject struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// SubscriptionObject объект событий customer.subscription.*.
type SubscriptionObject struct {
	ID         string            `json:"id"`
	Customer   string            `json:"customer"`
	Status     string            `json:"status"`
	TrialStart *int64            `json:"trial_start"`
	TrialEnd   *int64            `json:"trial_end"`
	Metadata   map[string]string `json:"metadata"`
	Items      struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID возвращает идентификатор цены первой позиции подписки.
func (s *SubscriptionObject) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// InvoiceObject объект событий invoice.*.
type InvoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
