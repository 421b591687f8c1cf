package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-prereq/internal/platform/envutil"
)

// PoisonSuffix is appended to a queue name to form its dead-letter list.
const PoisonSuffix = ":poison"

type Message struct {
	Queue string
	Body  []byte
}

// Source hands out trigger messages. Next returns nil, nil when nothing
// arrived within its poll window.
type Source interface {
	Next(ctx context.Context) (*Message, error)
	Poison(ctx context.Context, msg *Message, cause error) error
}

type Queues struct {
	Expand    string
	Propagate string
}

func QueuesFromEnv() Queues {
	return Queues{
		Expand:    envutil.String("TRIGGER_QUEUE_EXPAND", "graph-expand"),
		Propagate: envutil.String("TRIGGER_QUEUE_PROPAGATE", "graph-propagate"),
	}
}

type poisoned struct {
	Body  json.RawMessage `json:"body"`
	Error string          `json:"error"`
	At    time.Time       `json:"at"`
}

// RedisSource pops from redis lists with BRPOP, so producers LPUSH.
type RedisSource struct {
	rdb    *goredis.Client
	queues []string
	wait   time.Duration
}

func NewRedisSource(rdb *goredis.Client, wait time.Duration, queues ...string) (*RedisSource, error) {
	if rdb == nil {
		return nil, fmt.Errorf("worker: redis client required")
	}
	if len(queues) == 0 {
		return nil, fmt.Errorf("worker: at least one queue required")
	}
	if wait <= 0 {
		wait = time.Second
	}
	return &RedisSource{rdb: rdb, queues: queues, wait: wait}, nil
}

func (s *RedisSource) Next(ctx context.Context) (*Message, error) {
	res, err := s.rdb.BRPop(ctx, s.wait, s.queues...).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("worker: unexpected BRPOP reply %v", res)
	}
	return &Message{Queue: res[0], Body: []byte(res[1])}, nil
}

func (s *RedisSource) Poison(ctx context.Context, msg *Message, cause error) error {
	raw, err := json.Marshal(poisoned{Body: rawOrString(msg.Body), Error: errString(cause), At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.rdb.LPush(ctx, msg.Queue+PoisonSuffix, raw).Err()
}

// Enqueue pushes v as JSON onto queue.
func (s *RedisSource) Enqueue(ctx context.Context, queue string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.LPush(ctx, queue, raw).Err()
}

// MemorySource is an in-process Source.
type MemorySource struct {
	ch chan *Message

	mu       sync.Mutex
	poisoned map[string][]poisoned
}

func NewMemorySource(buffer int) *MemorySource {
	return &MemorySource{ch: make(chan *Message, buffer), poisoned: map[string][]poisoned{}}
}

func (s *MemorySource) Push(queue string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.ch <- &Message{Queue: queue, Body: raw}
	return nil
}

func (s *MemorySource) PushRaw(queue string, body []byte) {
	s.ch <- &Message{Queue: queue, Body: body}
}

func (s *MemorySource) Next(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-s.ch:
		return m, nil
	}
}

func (s *MemorySource) Poison(ctx context.Context, msg *Message, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := msg.Queue + PoisonSuffix
	s.poisoned[q] = append(s.poisoned[q], poisoned{Body: rawOrString(msg.Body), Error: errString(cause), At: time.Now().UTC()})
	return nil
}

// Poisoned returns the error texts recorded for queue's dead letters.
func (s *MemorySource) Poisoned(queue string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.poisoned[queue+PoisonSuffix] {
		out = append(out, p.Error)
	}
	return out
}

func rawOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	s, _ := json.Marshal(string(b))
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
