package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ayurflow/clinic-api/internal/model"
)

const (
	entityTTL     = 30 * time.Minute
	listTTL       = 30 * time.Second
	sweepInterval = 5 * time.Minute
	keySep        = "/"
	listKeyPrefix = "list" + keySep
)

// Entry pairs a cached value with the backend version it reflects.
type Entry struct {
	Value   interface{}
	Version int64
}

// Mirror is the versioned local cache of canonical state. Only the gateway
// services and the sync channel write to it; everything else reads. Entity
// writes are rejected when they would move a key backwards in version.
type Mirror struct {
	mu       sync.RWMutex
	entities *gocache.Cache
	lists    *gocache.Cache
}

func NewMirror() *Mirror {
	return &Mirror{
		entities: gocache.New(entityTTL, sweepInterval),
		lists:    gocache.New(listTTL, sweepInterval),
	}
}

func entityKey(family model.ResourceFamily, id string) string {
	return string(family) + keySep + id
}

// PutEntity stores value at version, refusing stale writes. The bool result
// reports whether the write was applied.
func (m *Mirror) PutEntity(family model.ResourceFamily, id string, value interface{}, version int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entityKey(family, id)
	if existing, ok := m.entities.Get(key); ok {
		if entry, ok := existing.(Entry); ok && entry.Version > version {
			return false
		}
	}
	m.entities.Set(key, Entry{Value: value, Version: version}, gocache.DefaultExpiration)
	return true
}

// ForcePutEntity bypasses the version check. Used only by resync, where the
// refetched state is canonical by definition.
func (m *Mirror) ForcePutEntity(family model.ResourceFamily, id string, value interface{}, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities.Set(entityKey(family, id), Entry{Value: value, Version: version}, gocache.DefaultExpiration)
}

func (m *Mirror) GetEntity(family model.ResourceFamily, id string) (interface{}, int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entities.Get(entityKey(family, id))
	if !ok {
		return nil, 0, false
	}
	entry := v.(Entry)
	return entry.Value, entry.Version, true
}

func (m *Mirror) DeleteEntity(family model.ResourceFamily, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities.Delete(entityKey(family, id))
}

// SetList caches a derived read (a filtered list, queue snapshot, stats
// block) under the family tag so mutations can invalidate it wholesale.
func (m *Mirror) SetList(family model.ResourceFamily, key string, value interface{}) {
	m.lists.Set(listKeyPrefix+entityKey(family, key), value, gocache.DefaultExpiration)
}

func (m *Mirror) GetList(family model.ResourceFamily, key string) (interface{}, bool) {
	return m.lists.Get(listKeyPrefix + entityKey(family, key))
}

// InvalidateFamily drops every list cached under the resource family.
func (m *Mirror) InvalidateFamily(family model.ResourceFamily) {
	prefix := listKeyPrefix + string(family) + keySep
	for key := range m.lists.Items() {
		if strings.HasPrefix(key, prefix) {
			m.lists.Delete(key)
		}
	}
}

// EntityIDs returns the ids currently mirrored for a family; the sync channel
// uses this to scope a reconnect resync.
func (m *Mirror) EntityIDs(family model.ResourceFamily) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := string(family) + keySep
	var ids []string
	for key := range m.entities.Items() {
		if strings.HasPrefix(key, prefix) {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
	}
	return ids
}

// Describe is a debugging aid for logs.
func (m *Mirror) Describe() string {
	return fmt.Sprintf("entities=%d lists=%d", m.entities.ItemCount(), m.lists.ItemCount())
}
