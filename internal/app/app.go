package app

import (
	"context"
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-prereq/internal/http"
	"github.com/yungbote/neurobridge-prereq/internal/observability"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Router   *gin.Engine

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	shutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(cfg.ServiceName))

	clients, err := wireClients(ctx, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if err := clients.Records.AutoMigrateAll(); err != nil {
		clients.Close(ctx)
		log.Sync()
		return nil, fmt.Errorf("record store automigrate: %w", err)
	}

	reposet := wireRepos(clients.Records.DB(), log)
	serviceset, err := wireServices(ctx, log, cfg, clients, reposet)
	if err != nil {
		clients.Close(ctx)
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, clients, serviceset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Router:       wireRouter(cfg, log, handlerset),
		otelShutdown: shutdown,
	}, nil
}

// Serve runs the HTTP server, and the trigger worker when withWorker is set,
// until ctx is cancelled or either fails.
func (a *App) Serve(ctx context.Context, withWorker bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := net.JoinHostPort("", a.Cfg.Port)
		a.Log.Info("HTTP server listening", "addr", addr)
		return (&http.Server{Engine: a.Router}).Run(ctx, addr)
	})
	if withWorker {
		g.Go(func() error { return a.RunWorker(ctx) })
	}
	return g.Wait()
}

func (a *App) RunWorker(ctx context.Context) error {
	if a.Services.Worker == nil {
		a.Log.Warn("Trigger worker disabled: REDIS_ADDR not set")
		<-ctx.Done()
		return nil
	}
	return a.Services.Worker.Run(ctx)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Clients.Close(ctx)
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// Migrate opens only the record store and applies its schema.
func Migrate(ctx context.Context) error {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	c, err := openRecords(log)
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	if err := c.Records.AutoMigrateAll(); err != nil {
		return fmt.Errorf("record store automigrate: %w", err)
	}
	log.Info("Record store migrated")
	return nil
}
