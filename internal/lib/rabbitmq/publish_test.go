package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu      sync.Mutex
	release chan struct{}
	sent    []amqp.Publishing
	keys    []string
}

func (c *recordingChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	c.keys = append(c.keys, key)
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func TestPublisher_Publish(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, EntitlementsExchange)

	err := p.Publish(context.Background(), EntitlementChanged, map[string]string{"id": "ent-1"})
	require.NoError(t, err)

	require.Len(t, ch.sent, 1)
	assert.Equal(t, EntitlementChanged, ch.keys[0])
	assert.Equal(t, "application/json", ch.sent[0].ContentType)
	var got map[string]string
	require.NoError(t, json.Unmarshal(ch.sent[0].Body, &got))
	assert.Equal(t, "ent-1", got["id"])
}

func TestPublisher_StalledChannelReturnsOnDeadline(t *testing.T) {
	ch := &recordingChannel{release: make(chan struct{})}
	defer close(ch.release)
	p := NewPublisher(ch, EntitlementsExchange)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, EntitlementChanged, map[string]string{"id": "ent-1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPublisher_CanceledContext(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, EntitlementsExchange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, EntitlementChanged, "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ch.sent)
}
