// Package signals delivers content-generation requests to the content
// pipeline.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/platform/envutil"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type Publisher interface {
	Publish(ctx context.Context, sig types.Signal) error
}

type Queues struct {
	Generate   string
	Regenerate string
}

func QueuesFromEnv() Queues {
	return Queues{
		Generate:   envutil.String("SIGNAL_QUEUE_GENERATE", "lesson-generate"),
		Regenerate: envutil.String("SIGNAL_QUEUE_REGENERATE", "lesson-regenerate"),
	}
}

func (q Queues) For(kind types.SignalKind) (string, error) {
	switch kind {
	case types.SignalContentGeneration:
		return q.Generate, nil
	case types.SignalContentRegeneration:
		return q.Regenerate, nil
	default:
		return "", fmt.Errorf("signals: unknown kind %q", kind)
	}
}

// RedisPublisher pushes JSON signals onto one list per kind. Consumers pop
// from the other end, so delivery order per queue is FIFO.
type RedisPublisher struct {
	rdb    *goredis.Client
	queues Queues
	log    *logger.Logger
}

func NewRedisPublisher(rdb *goredis.Client, queues Queues, baseLog *logger.Logger) (*RedisPublisher, error) {
	if rdb == nil {
		return nil, fmt.Errorf("signals: redis client required")
	}
	return &RedisPublisher{rdb: rdb, queues: queues, log: baseLog.With("service", "RedisSignalPublisher")}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, sig types.Signal) error {
	queue, err := p.queues.For(sig.Kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	if err := p.rdb.LPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", queue, err)
	}
	p.log.Debug("Published signal", "queue", queue, "kind", sig.Kind, "node_id", sig.NodeID, "owner_id", sig.OwnerID)
	return nil
}

// LogPublisher only logs. Used when no queue is configured.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(baseLog *logger.Logger) *LogPublisher {
	return &LogPublisher{log: baseLog.With("service", "LogSignalPublisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, sig types.Signal) error {
	p.log.Info("Signal", "kind", sig.Kind, "node_id", sig.NodeID, "owner_id", sig.OwnerID)
	return nil
}

// Recorder keeps every signal in memory.
type Recorder struct {
	mu      sync.Mutex
	signals []types.Signal
	Err     error
}

func (r *Recorder) Publish(ctx context.Context, sig types.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.signals = append(r.signals, sig)
	return nil
}

func (r *Recorder) Signals() []types.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.signals = nil
	r.mu.Unlock()
}
