package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another holder owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker is a distributed mutual-exclusion lock with an expiry, used to keep
// concurrent call-next requests for the same queue from racing each other
// across instances.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the named lock, returning a release func. The token guards
// against releasing a lock that expired and was re-acquired elsewhere.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "lock:"+name, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	release := func() {
		releaseScript.Run(context.Background(), l.client, []string{"lock:" + name}, token)
	}
	return release, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)
