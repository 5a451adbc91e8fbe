// Package realtime pushes board updates to front-end subscribers over Redis
// pub/sub. Delivery is best-effort; a failed publish never affects the
// transition that produced it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/kanban-service/internal/events"
)

// Publisher republishes engine events on per-tenant Redis channels.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher builds a Publisher.
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// RegisterHandlers subscribes to the engine events that change what the board
// shows.
func (p *Publisher) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketLaneMoved, p.handle)
	dispatcher.Subscribe(events.EventLaneTimerStarted, p.handle)
	dispatcher.Subscribe(events.EventLaneTimerCancelled, p.handle)
}

// ChannelFor returns the tenant's ticket-update channel name.
func ChannelFor(tenantID string) string {
	return fmt.Sprintf("tenant:%s:ticket-updated", tenantID)
}

func (p *Publisher) handle(ctx context.Context, event events.Event) error {
	if p.client == nil || event.TenantID == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal realtime event", zap.Error(err))
		return nil
	}
	if err := p.client.Publish(ctx, ChannelFor(event.TenantID), payload).Err(); err != nil {
		p.logger.Warn("publish realtime event",
			zap.String("tenant_id", event.TenantID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	return nil
}
