package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-prereq/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-prereq/internal/http/middleware"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger

	GraphHandler  *httpH.GraphHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	if cfg.GraphHandler != nil {
		learners := api.Group("/learners/:owner_id")
		learners.POST("/seed", cfg.GraphHandler.Seed)
		learners.POST("/expand", cfg.GraphHandler.Expand)
		learners.POST("/propagate", cfg.GraphHandler.Propagate)
		learners.GET("/graph", cfg.GraphHandler.Graph)
		learners.GET("/nodes/:node_id", cfg.GraphHandler.Node)
		learners.POST("/nodes/:node_id/status", cfg.GraphHandler.AdvanceStatus)
	}

	return r
}
