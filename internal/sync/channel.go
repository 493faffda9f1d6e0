package sync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/coordinator"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/messaging"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

const heartbeatChannel = "sync:heartbeat"

func channelName(family model.ResourceFamily) string {
	return "sync:" + string(family)
}

// Handler receives canonical events after they are applied to the mirror.
type Handler func(event *model.SyncEvent)

// Resync refetches canonical state for a family; invoked on every
// (re)connect so missed events can never leave the mirror stale.
type Resync func(ctx context.Context, family model.ResourceFamily) error

type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatMisses   int
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
}

// Channel is the long-lived subscription that keeps the local mirror
// reconciled with the backend's canonical state. Per-entity ordering is
// enforced by the event sequence number; cross-entity ordering is not
// guaranteed and not needed.
type Channel struct {
	broker   messaging.Broker
	mirror   *cache.Mirror
	coord    *coordinator.Coordinator
	cfg      Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
	families []model.ResourceFamily

	state atomic.Int32

	mu       sync.RWMutex
	handlers map[model.ResourceFamily][]Handler
	resyncs  map[model.ResourceFamily]Resync
}

func NewChannel(broker messaging.Broker, mirror *cache.Mirror, coord *coordinator.Coordinator, cfg Config, log *logger.Logger, m *metrics.Metrics) *Channel {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.HeartbeatMisses <= 0 {
		cfg.HeartbeatMisses = 3
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Channel{
		broker:   broker,
		mirror:   mirror,
		coord:    coord,
		cfg:      cfg,
		logger:   log.WithComponent("sync"),
		metrics:  m,
		families: []model.ResourceFamily{model.ResourceFamilyAppointments, model.ResourceFamilyQueue},
		handlers: make(map[model.ResourceFamily][]Handler),
		resyncs:  make(map[model.ResourceFamily]Resync),
	}
}

// Subscribe registers a handler for applied events of a resource family.
func (c *Channel) Subscribe(family model.ResourceFamily, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[family] = append(c.handlers[family], h)
}

// RegisterResync installs the refetch used after reconnects.
func (c *Channel) RegisterResync(family model.ResourceFamily, fn Resync) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resyncs[family] = fn
}

func (c *Channel) State() model.ConnectionState {
	return model.ConnectionState(c.state.Load())
}

func (c *Channel) setState(s model.ConnectionState) {
	c.state.Store(int32(s))
	c.metrics.SyncState.Set(float64(s))
}

type inbound struct {
	family model.ResourceFamily
	data   []byte
}

// Run drives the connect/receive/reconnect loop until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		c.setState(model.ConnConnecting)

		connCtx, cancel := context.WithCancel(ctx)
		recv, err := c.connect(connCtx)
		if err == nil {
			err = c.resyncAll(connCtx)
		}
		if err != nil {
			cancel()
			c.metrics.SyncReconnects.Inc()
			c.logger.Warn("sync connect failed, backing off", "error", err.Error(), "attempt", attempt)
			if !c.sleep(ctx, c.backoff(attempt)) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		c.setState(model.ConnConnected)
		c.receive(connCtx, recv)
		cancel()
		c.setState(model.ConnDisconnected)
	}
}

func (c *Channel) connect(ctx context.Context) (<-chan inbound, error) {
	recv := make(chan inbound, 128)
	var wg sync.WaitGroup

	for _, family := range c.families {
		msgs, err := c.broker.Subscribe(ctx, channelName(family))
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go forward(ctx, &wg, family, msgs, recv)
	}

	beats, err := c.broker.Subscribe(ctx, heartbeatChannel)
	if err != nil {
		return nil, err
	}
	wg.Add(1)
	go forward(ctx, &wg, "", beats, recv)

	// Any closed subscription ends the connection; closing recv unblocks
	// the receive loop.
	go func() {
		wg.Wait()
		close(recv)
	}()

	return recv, nil
}

func forward(ctx context.Context, wg *sync.WaitGroup, family model.ResourceFamily, in <-chan []byte, out chan<- inbound) {
	defer wg.Done()
	for msg := range in {
		select {
		case out <- inbound{family: family, data: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) resyncAll(ctx context.Context) error {
	c.mu.RLock()
	resyncs := make(map[model.ResourceFamily]Resync, len(c.resyncs))
	for f, fn := range c.resyncs {
		resyncs[f] = fn
	}
	c.mu.RUnlock()

	for family, fn := range resyncs {
		if err := fn(ctx, family); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) receive(ctx context.Context, recv <-chan inbound) {
	lastBeat := time.Now()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-recv:
			if !ok {
				return
			}
			if msg.family == "" {
				lastBeat = time.Now()
				if c.State() == model.ConnDegraded {
					c.setState(model.ConnConnected)
				}
				continue
			}
			c.apply(msg.family, msg.data)
		case <-ticker.C:
			missed := time.Since(lastBeat) > c.cfg.HeartbeatInterval*time.Duration(c.cfg.HeartbeatMisses)
			if missed && c.State() == model.ConnConnected {
				c.logger.Warn("heartbeats missing, marking channel degraded")
				c.setState(model.ConnDegraded)
			}
		}
	}
}

func (c *Channel) apply(family model.ResourceFamily, raw []byte) {
	var event model.SyncEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.logger.Error(err, "failed to decode sync event", "family", string(family))
		return
	}

	id := event.ResourceID.String()
	switch event.Operation {
	case model.SyncOpDeleted:
		c.mirror.DeleteEntity(family, id)
	case model.SyncOpCreated, model.SyncOpUpdated:
		entity, err := decodePayload(family, event.Payload)
		if err != nil {
			c.logger.Error(err, "failed to decode sync payload", "resource_id", id)
			return
		}
		if !c.mirror.PutEntity(family, id, entity, event.Sequence) {
			// Older than what we hold; per-entity order is by sequence,
			// not receipt time.
			c.metrics.SyncEventsStale.Inc()
			return
		}
	default:
		c.logger.Warn("unknown sync operation", "operation", string(event.Operation))
		return
	}

	c.mirror.InvalidateFamily(family)
	c.coord.ObserveEvent(family, event.ResourceID, event.EmittedAt)
	c.metrics.SyncEventsApplied.WithLabelValues(string(family), string(event.Operation)).Inc()
	c.dispatch(family, &event)
}

func decodePayload(family model.ResourceFamily, payload json.RawMessage) (interface{}, error) {
	switch family {
	case model.ResourceFamilyQueue:
		var entry model.QueueEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	default:
		var apt model.Appointment
		if err := json.Unmarshal(payload, &apt); err != nil {
			return nil, err
		}
		return &apt, nil
	}
}

func (c *Channel) dispatch(family model.ResourceFamily, event *model.SyncEvent) {
	c.mu.RLock()
	handlers := c.handlers[family]
	c.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

func (c *Channel) backoff(attempt int) time.Duration {
	d := c.cfg.ReconnectBase << uint(attempt)
	if d > c.cfg.ReconnectMax || d <= 0 {
		d = c.cfg.ReconnectMax
	}
	return d
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
