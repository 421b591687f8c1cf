package app

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	"github.com/yungbote/neurobridge-prereq/internal/jobs/worker"
	"github.com/yungbote/neurobridge-prereq/internal/modules/prereq"
	"github.com/yungbote/neurobridge-prereq/internal/oracle"
	"github.com/yungbote/neurobridge-prereq/internal/ownerlock"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
	"github.com/yungbote/neurobridge-prereq/internal/services"
	"github.com/yungbote/neurobridge-prereq/internal/signals"
)

type Services struct {
	Graph   services.GraphService
	Worker  *worker.Worker
	Signals signals.Publisher
}

func wireServices(ctx context.Context, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	var store graph.Store
	if clients.Neo4j != nil {
		neo := graph.NewNeo4jStore(clients.Neo4j, log)
		neo.EnsureSchema(ctx)
		store = neo
	} else {
		store = graph.NewMemoryStore()
	}

	var (
		publisher signals.Publisher
		locks     ownerlock.Locker
		source    worker.Source
	)
	queues := worker.QueuesFromEnv()
	if clients.Redis != nil {
		p, err := signals.NewRedisPublisher(clients.Redis, signals.QueuesFromEnv(), log)
		if err != nil {
			return Services{}, err
		}
		publisher = p
		l, err := ownerlock.NewRedis(clients.Redis, cfg.OwnerLockTTL, log)
		if err != nil {
			return Services{}, err
		}
		locks = l
		src, err := worker.NewRedisSource(clients.Redis, 0, queues.Expand, queues.Propagate)
		if err != nil {
			return Services{}, err
		}
		source = src
	} else {
		publisher = signals.NewLogPublisher(log)
		locks = ownerlock.NewLocal()
	}

	topics := oracle.New(clients.LLM, log)
	expander := prereq.NewExpander(store, reposet.NodeRecord, topics, log, prereq.WithMaxDepth(cfg.MaxDepth))
	propagator := prereq.NewPropagator(store, reposet.NodeRecord, publisher, log)
	graphService := services.NewGraphService(store, reposet.NodeRecord, expander, propagator, locks, log)

	out := Services{Graph: graphService, Signals: publisher}
	if source != nil {
		registry := worker.NewRegistry()
		if err := worker.RegisterGraphHandlers(registry, queues, graphService); err != nil {
			return Services{}, fmt.Errorf("register trigger handlers: %w", err)
		}
		out.Worker = worker.NewWorker(source, registry, log, cfg.WorkerConcurrency)
	}
	return out, nil
}
