package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/messaging"
)

// Publisher emits canonical change events after a confirmed mutation. The
// entity's backend version becomes the event sequence number, so subscribers
// can order events per entity without trusting clocks.
type Publisher struct {
	broker messaging.Broker
	logger *logger.Logger
}

func NewPublisher(broker messaging.Broker, log *logger.Logger) *Publisher {
	return &Publisher{broker: broker, logger: log.WithComponent("sync-publisher")}
}

func (p *Publisher) Publish(ctx context.Context, family model.ResourceFamily, op model.SyncOperation, id uuid.UUID, sequence int64, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error(err, "failed to marshal event payload", "resource_id", id.String())
		return
	}

	event := model.SyncEvent{
		Resource:   family,
		Operation:  op,
		ResourceID: id,
		Sequence:   sequence,
		EmittedAt:  time.Now(),
		Payload:    raw,
	}

	// Broadcast failures leave subscribers one resync behind, never
	// inconsistent; they are logged, not propagated.
	if err := p.broker.Publish(ctx, channelName(family), event); err != nil {
		p.logger.Error(err, "failed to publish sync event",
			"resource", string(family), "resource_id", id.String())
	}
}

// RunHeartbeat publishes the liveness beat subscribers use to detect a
// degraded connection.
func (p *Publisher) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			beat := map[string]interface{}{"ts": t.UTC().Format(time.RFC3339Nano)}
			if err := p.broker.Publish(ctx, heartbeatChannel, beat); err != nil {
				p.logger.Warn("failed to publish heartbeat", "error", err.Error())
			}
		}
	}
}
