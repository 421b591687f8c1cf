// Package ownerlock serializes graph mutations per learner.
package ownerlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

var ErrNotHeld = errors.New("ownerlock: lock no longer held")

type Unlock func()

type Locker interface {
	// Lock blocks until the owner's lock is held or ctx is done.
	Lock(ctx context.Context, ownerID uuid.UUID) (Unlock, error)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped when nobody holds
// or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*localEntry
}

func NewLocal() *Local {
	return &Local{entries: map[uuid.UUID]*localEntry{}}
}

func (l *Local) Lock(ctx context.Context, ownerID uuid.UUID) (Unlock, error) {
	l.mu.Lock()
	e := l.entries[ownerID]
	if e == nil {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[ownerID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(ownerID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(ownerID, e)
		})
	}, nil
}

func (l *Local) release(ownerID uuid.UUID, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, ownerID)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock shared across processes. A holder that outlives
// the TTL loses the lease.
type Redis struct {
	rdb    *goredis.Client
	ttl    time.Duration
	poll   time.Duration
	prefix string
	log    *logger.Logger
}

func NewRedis(rdb *goredis.Client, ttl time.Duration, baseLog *logger.Logger) (*Redis, error) {
	if rdb == nil {
		return nil, fmt.Errorf("ownerlock: redis client required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{
		rdb:    rdb,
		ttl:    ttl,
		poll:   50 * time.Millisecond,
		prefix: "prereq:owner-lock:",
		log:    baseLog.With("service", "RedisOwnerLock"),
	}, nil
}

func (r *Redis) key(ownerID uuid.UUID) string { return r.prefix + ownerID.String() }

func (r *Redis) Lock(ctx context.Context, ownerID uuid.UUID) (Unlock, error) {
	key := r.key(ownerID)
	token := uuid.NewString()
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Int()
			switch {
			case err != nil:
				r.log.Warn("Owner lock release failed", "owner_id", ownerID, "error", err)
			case n == 0:
				r.log.Warn("Owner lock expired before release", "owner_id", ownerID, "error", ErrNotHeld)
			}
		})
	}, nil
}
