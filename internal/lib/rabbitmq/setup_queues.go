package rabbitmq

// Имена обменника и ключа маршрутизации для событий entitlement.
const (
	EntitlementsExchange = "entitlements"
	EntitlementChanged   = "entitlement.changed"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetEntitlementQueues возвращает очереди, которые объявляются вместе с обменником.
func GetEntitlementQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "entitlements.changed", RoutingKey: EntitlementChanged},
	}
}
