package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

// Coordinator applies optimistic predictions to the local mirror and
// reconciles them against the authoritative result. Mutations on the same
// entity are serialized; different entities proceed independently.
type Coordinator struct {
	mirror  *cache.Mirror
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]*model.MutationIntent
}

func New(mirror *cache.Mirror, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		mirror:  mirror,
		logger:  log.WithComponent("coordinator"),
		metrics: m,
		locks:   make(map[string]*sync.Mutex),
		pending: make(map[string]*model.MutationIntent),
	}
}

func key(family model.ResourceFamily, id uuid.UUID) string {
	return string(family) + "/" + id.String()
}

func (c *Coordinator) entityLock(k string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

// Mutation is the authoritative half of an optimistic change: it returns the
// canonical entity state and its version, or an error.
type Mutation func(ctx context.Context) (canonical interface{}, version int64, err error)

// Execute runs one optimistic mutation: the predicted state lands in the
// mirror immediately, then the mutation's result either commits the canonical
// state or rolls the entity back to its pre-mutation snapshot. The snapshot
// is only restored if no canonical event moved the entity forward in the
// meantime; a newer event always wins over a stale local guess.
func (c *Coordinator) Execute(ctx context.Context, family model.ResourceFamily, id uuid.UUID, predicted interface{}, mutate Mutation) (interface{}, error) {
	k := key(family, id)
	lock := c.entityLock(k)
	lock.Lock()
	defer lock.Unlock()

	snapshot, snapVersion, hadSnapshot := c.mirror.GetEntity(family, id.String())

	intent := &model.MutationIntent{
		EntityType:     string(family),
		EntityID:       id,
		PredictedState: predicted,
		SubmittedAt:    time.Now(),
		Status:         model.IntentPending,
	}
	c.setPending(k, intent)
	defer c.clearPending(k)

	// The prediction keeps the snapshot's version: a canonical event for any
	// later version still supersedes it.
	if predicted != nil {
		c.mirror.PutEntity(family, id.String(), predicted, snapVersion)
	}

	canonical, version, err := mutate(ctx)
	if err != nil {
		intent.Status = model.IntentRolledBack
		c.rollback(family, id.String(), snapshot, snapVersion, hadSnapshot)
		return nil, err
	}

	intent.Status = model.IntentCommitted
	if !c.mirror.PutEntity(family, id.String(), canonical, version) {
		// A newer canonical event landed while the call was in flight.
		c.metrics.IntentsSuperseded.Inc()
	} else {
		c.metrics.IntentsCommitted.Inc()
	}
	return canonical, nil
}

func (c *Coordinator) rollback(family model.ResourceFamily, id string, snapshot interface{}, snapVersion int64, hadSnapshot bool) {
	_, currentVersion, ok := c.mirror.GetEntity(family, id)
	if ok && currentVersion > snapVersion {
		// Canonical state advanced past the snapshot; reverting would
		// overwrite newer truth.
		c.metrics.IntentsSuperseded.Inc()
		return
	}
	if hadSnapshot {
		c.mirror.ForcePutEntity(family, id, snapshot, snapVersion)
	} else {
		c.mirror.DeleteEntity(family, id)
	}
	c.metrics.IntentsRolledBack.Inc()
	c.logger.Debug("rolled back optimistic mutation", "entity", id)
}

// ObserveEvent lets the sync channel report a canonical event so pending
// intents learn they were superseded. The mirror write itself happens in the
// channel; precedence there is by version, here by emission time against the
// intent's submission time.
func (c *Coordinator) ObserveEvent(family model.ResourceFamily, id uuid.UUID, emittedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.pending[key(family, id)]
	if !ok || intent.Status != model.IntentPending {
		return
	}
	if emittedAt.After(intent.SubmittedAt) {
		c.metrics.IntentsSuperseded.Inc()
		c.logger.Debug("canonical event superseded pending intent",
			"entity", id.String(), "entity_type", string(family))
	}
}

// PendingIntent exposes the in-flight intent for an entity, if any.
func (c *Coordinator) PendingIntent(family model.ResourceFamily, id uuid.UUID) (*model.MutationIntent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	intent, ok := c.pending[key(family, id)]
	return intent, ok
}

func (c *Coordinator) setPending(k string, intent *model.MutationIntent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[k] = intent
}

func (c *Coordinator) clearPending(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, k)
}
