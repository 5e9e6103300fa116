package models

// Plan запись каталога тарифов: ключ тарифа ↔ идентификатор цены биллинга ↔ отображение.
type Plan struct {
	Key         string `json:"key"`
	PriceID     string `json:"price_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
}
