package ownerlock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	owner := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), owner)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected mutual exclusion, saw %d holders", maxInside)
	}

	// Different owners do not block each other.
	unlockA, err := l.Lock(context.Background(), owner)
	if err != nil {
		t.Fatalf("Lock A: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, uuid.New())
	if err != nil {
		t.Fatalf("Lock B should not wait on A: %v", err)
	}
	unlockB()

	// A held lock times out waiters.
	short, cancelShort := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelShort()
	if _, err := l.Lock(short, owner); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	unlockA()
	unlockA()

	unlock, err := l.Lock(context.Background(), owner)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	unlock()
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	exerciseLocker(t, l)
	if n := l.size(); n != 0 {
		t.Fatalf("expected idle entries to be dropped, have %d", n)
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := NewRedis(rdb, time.Minute, logger.Nop())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	l.prefix = "test:owner-lock:" + uuid.NewString() + ":"
	exerciseLocker(t, l)
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := NewRedis(rdb, time.Minute, logger.Nop())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	l.prefix = "test:owner-lock:" + uuid.NewString() + ":"
	owner := uuid.New()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, owner)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// Simulate lease expiry and takeover by another process.
	rdb.Set(ctx, l.key(owner), "someone-else", time.Minute)
	unlock()
	if got := rdb.Get(ctx, l.key(owner)).Val(); got != "someone-else" {
		t.Fatalf("release must not delete a foreign lease, key now %q", got)
	}
	rdb.Del(ctx, l.key(owner))
}

func TestNewRedisRequiresClient(t *testing.T) {
	if _, err := NewRedis(nil, time.Second, logger.Nop()); err == nil {
		t.Fatalf("expected error without client")
	}
}
