package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/events/bus"
)

// Publisher is a nil-safe, best-effort wrapper around a bus.EventBus: a
// publish failure is logged, never returned, since no lifecycle transition
// in this core should fail or roll back because a downstream subscriber
// could not be reached.
type Publisher struct {
	bus    bus.EventBus
	source string
	logger *logger.Logger
}

// NewPublisher wraps b for publishing events tagged with source. b may be
// nil, in which case Publish is a no-op; this lets every domain package
// accept a *Publisher unconditionally instead of branching on whether an
// event bus was configured.
func NewPublisher(b bus.EventBus, source string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Default()
	}
	return &Publisher{bus: b, source: source, logger: log}
}

// Publish emits eventType with data, logging and swallowing any error.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	evt := bus.NewEvent(eventType, p.source, data)
	if err := p.bus.Publish(ctx, eventType, evt); err != nil {
		p.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
