package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

// Handler processes one message body. Returning an error poisons the message.
type Handler func(ctx context.Context, body []byte) error

type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry { return &Registry{handlers: map[string]Handler{}} }

func (r *Registry) Register(queue string, h Handler) error {
	if queue == "" || h == nil {
		return fmt.Errorf("worker: queue and handler required")
	}
	if _, ok := r.handlers[queue]; ok {
		return fmt.Errorf("worker: handler already registered for %q", queue)
	}
	r.handlers[queue] = h
	return nil
}

func (r *Registry) Get(queue string) (Handler, bool) {
	h, ok := r.handlers[queue]
	return h, ok
}

func (r *Registry) Queues() []string {
	out := make([]string, 0, len(r.handlers))
	for q := range r.handlers {
		out = append(out, q)
	}
	return out
}

type Worker struct {
	src         Source
	registry    *Registry
	log         *logger.Logger
	concurrency int
	backoff     time.Duration
}

func NewWorker(src Source, registry *Registry, baseLog *logger.Logger, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		src:         src,
		registry:    registry,
		log:         baseLog.With("component", "TriggerWorker"),
		concurrency: concurrency,
		backoff:     time.Second,
	}
}

// Run consumes until ctx is cancelled and returns once every loop has exited.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting trigger worker pool", "concurrency", w.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	return nil
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		}
		msg, err := w.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Warn("Fetching trigger failed", "worker_id", workerID, "error", err)
			t := time.NewTimer(w.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
			continue
		}
		if msg == nil {
			continue
		}
		w.handle(ctx, workerID, msg)
	}
}

func (w *Worker) handle(ctx context.Context, workerID int, msg *Message) {
	h, ok := w.registry.Get(msg.Queue)
	if !ok {
		w.log.Warn("No handler registered for queue", "worker_id", workerID, "queue", msg.Queue)
		w.poison(ctx, workerID, msg, &missingHandlerError{Queue: msg.Queue})
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Trigger handler panic", "worker_id", workerID, "queue", msg.Queue, "panic", r)
				err = &panicError{Val: r}
			}
		}()
		return h(ctx, msg.Body)
	}()
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Shutdown interrupted the handler; the message is lost rather than poisoned.
		w.log.Warn("Trigger interrupted by shutdown", "worker_id", workerID, "queue", msg.Queue)
		return
	}
	w.log.Warn("Trigger failed", "worker_id", workerID, "queue", msg.Queue, "error", err)
	w.poison(ctx, workerID, msg, err)
}

func (w *Worker) poison(ctx context.Context, workerID int, msg *Message, cause error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.src.Poison(pctx, msg, cause); err != nil {
		w.log.Error("Poisoning trigger failed", "worker_id", workerID, "queue", msg.Queue, "error", err)
	}
}

type missingHandlerError struct{ Queue string }

func (e *missingHandlerError) Error() string { return "no handler registered for queue=" + e.Queue }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
