package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-prereq/internal/data/db"
	"github.com/yungbote/neurobridge-prereq/internal/platform/llm"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
	"github.com/yungbote/neurobridge-prereq/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-prereq/internal/platform/redisdb"
)

type Clients struct {
	Records *db.RecordStore
	Neo4j   *neo4jdb.Client
	Redis   *goredis.Client
	LLM     llm.Provider
}

// wireClients connects every backing service. Neo4j and Redis are optional;
// when unset the in-memory graph and in-process signals/locks are used.
func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	c, err := openRecords(log)
	if err != nil {
		return Clients{}, err
	}

	c.Neo4j, err = neo4jdb.NewFromEnv(log)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	if c.Neo4j == nil {
		log.Warn("NEO4J_URI not set, using in-memory graph store")
	}

	c.Redis, err = redisdb.NewFromEnv(log)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	if c.Redis == nil {
		log.Warn("REDIS_ADDR not set, signals are logged and locks are process-local")
	}

	c.LLM, err = llm.NewProvider(ctx, llm.ConfigFromEnv(), log)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init llm provider: %w", err)
	}
	return c, nil
}

func (c Clients) Close(ctx context.Context) {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Records != nil {
		_ = c.Records.Close()
	}
}

func openRecords(log *logger.Logger) (Clients, error) {
	records, err := db.Open(db.ConfigFromEnv(), log)
	if err != nil {
		return Clients{}, fmt.Errorf("init record store: %w", err)
	}
	return Clients{Records: records}, nil
}
