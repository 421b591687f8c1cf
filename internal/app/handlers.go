package app

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-prereq/internal/http"
	httpH "github.com/yungbote/neurobridge-prereq/internal/http/handlers"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Graph  *httpH.GraphHandler
}

func wireHandlers(log *logger.Logger, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")
	deps := map[string]httpH.Pinger{}
	if clients.Records != nil {
		deps["records"] = httpH.PingFunc(func(ctx context.Context) error {
			sqlDB, err := clients.Records.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if clients.Neo4j != nil {
		deps["neo4j"] = httpH.PingFunc(func(ctx context.Context) error {
			return clients.Neo4j.Driver.VerifyConnectivity(ctx)
		})
	}
	if clients.Redis != nil {
		deps["redis"] = httpH.PingFunc(func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		})
	}
	return Handlers{
		Health: httpH.NewHealthHandler(deps),
		Graph:  httpH.NewGraphHandler(services.Graph, log),
	}
}

func wireRouter(cfg Config, log *logger.Logger, handlers Handlers) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		ServiceName:   cfg.ServiceName,
		Log:           log,
		GraphHandler:  handlers.Graph,
		HealthHandler: handlers.Health,
	})
}
