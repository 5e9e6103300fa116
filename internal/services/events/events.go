// Package events публикует изменения entitlement после фиксации транзакции.
// Публикация best-effort: ошибка брокера логируется и не влияет на результат операции.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Publisher отправляет сообщение в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Notifier обёртка над Publisher. Nil-получатель ничего не делает.
type Notifier struct {
	log     *slog.Logger
	pub     Publisher
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewNotifier создаёт Notifier.
func NewNotifier(log *slog.Logger, pub Publisher, m *metrics.Metrics) *Notifier {
	return &Notifier{
		log:     log,
		pub:     pub,
		metrics: m,
		timeout: 2 * time.Second,
	}
}

// EntitlementChanged публикует событие об изменении записи.
func (n *Notifier) EntitlementChanged(ctx context.Context, e *models.Entitlement, source string, at time.Time) {
	if n == nil || n.pub == nil || e == nil {
		return
	}
	const op = "events.EntitlementChanged"

	// Запись уже зафиксирована: публикация ждёт не дольше timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	event := models.NewEntitlementChanged(e, source, at)
	if err := n.pub.Publish(ctx, rabbitmq.EntitlementChanged, event); err != nil {
		n.metrics.EventPublished("error")
		n.log.Warn("failed to publish entitlement event",
			slog.String("op", op),
			slog.String("entitlement_id", e.ID),
			slog.String("source", source),
			sl.Err(err))
		return
	}
	n.metrics.EventPublished("ok")
}
