package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apiHandler "github.com/fastygo/sales/api/handler"
	"github.com/fastygo/sales/internal/config"
	"github.com/fastygo/sales/internal/infrastructure/monitor"
	"github.com/fastygo/sales/internal/middleware"
	"github.com/fastygo/sales/internal/router"
	"github.com/fastygo/sales/internal/services/integration"
	"github.com/fastygo/sales/internal/services/lifecycle"
	"github.com/fastygo/sales/internal/services/outbox"
	"github.com/fastygo/sales/internal/services/projection"
	"github.com/fastygo/sales/pkg/httpcontext"
	"github.com/fastygo/sales/pkg/logger"
	"github.com/fastygo/sales/pkg/retry"
	"github.com/fastygo/sales/usecase"
	saleUC "github.com/fastygo/sales/usecase/sale"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	appCtx, cancel := manager.SignalContext(context.Background())
	defer cancel()

	store, err := openStorage(appCtx, cfg, manager, zapLogger)
	if err != nil {
		zapLogger.Fatal("storage init failed", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}

	customers, stock, crm := buildIntegrations(cfg, zapLogger)

	saleUseCase := saleUC.New(store.sales, store.idempotency, customers, stock, saleUC.Options{
		Retry: retry.Config{
			MaxRetries: cfg.Sequence.MaxRetries,
			BaseDelay:  cfg.Sequence.BaseDelay,
			MaxDelay:   cfg.Sequence.MaxDelay,
		},
		IdempotencyTTL: cfg.Idempotency.TTL,
		Logger:         zapLogger.Named("sales"),
	})

	dispatcher := outbox.NewDispatcher(store.outbox, []outbox.Subscriber{
		projection.NewLog(zapLogger),
		projection.NewCRM(crm, zapLogger),
		projection.NewInventory(store.sales, stock, zapLogger),
	}, outbox.Config{
		BatchSize:     cfg.Outbox.BatchSize,
		MaxRetries:    cfg.Outbox.MaxRetries,
		PollInterval:  cfg.Outbox.PollInterval,
		ErrorCooldown: cfg.Outbox.ErrorCooldown,
	}, zapLogger.Named("outbox"))
	// Registered right after storage: hooks run in reverse, so the last batch
	// settles before any connection is closed.
	manager.Register("dispatcher", dispatcher.Wait)

	janitor, err := outbox.NewJanitor(store.outbox, store.idempotency, outbox.JanitorConfig{
		Schedule:  cfg.Outbox.CleanupSchedule,
		Retention: cfg.Outbox.Retention,
	}, zapLogger.Named("janitor"))
	if err != nil {
		zapLogger.Fatal("janitor init failed", zap.Error(err))
	}
	janitor.Start()
	manager.Register("janitor", janitor.Stop)

	mon := monitor.New(monitor.Dependencies{
		Postgres: store.pool,
		Redis:    store.redis,
		Bolt:     store.bolt,
		Outbox:   store.outbox,
	}, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	handlers := router.Handlers{
		Sale:   apiHandler.NewSaleHandler(saleUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	r := router.New(handlers, middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger))

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	group, groupCtx := errgroup.WithContext(appCtx)
	group.Go(func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return manager.Shutdown(context.Background())
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("service stopped with error", zap.Error(err))
	}
}

// stockService reserves stock for new items and releases it after cancellation.
type stockService interface {
	usecase.StockReservation
	projection.StockReleaser
}

func buildIntegrations(cfg *config.Config, log *zap.Logger) (usecase.CustomerValidator, stockService, projection.CRMPublisher) {
	if cfg.Integrations.Mode == config.IntegrationsModeMock {
		log.Warn("external integrations mocked")
		crm := integration.NewMockCRM(log)
		return crm, integration.NewMockInventory(log), crm
	}

	base := integration.ClientConfig{
		Timeout:          cfg.Integrations.Timeout,
		MaxRetries:       cfg.Integrations.MaxRetries,
		RetryBaseDelay:   cfg.Integrations.RetryBaseDelay,
		BreakerThreshold: cfg.Integrations.BreakerThreshold,
		BreakerCooldown:  cfg.Integrations.BreakerCooldown,
	}
	crmCfg := base
	crmCfg.Name, crmCfg.BaseURL = "crm", cfg.Integrations.CRMURL
	invCfg := base
	invCfg.Name, invCfg.BaseURL = "inventory", cfg.Integrations.InventoryURL

	crm := integration.NewCRMClient(crmCfg, log)
	return crm, integration.NewInventoryClient(invCfg, log), crm
}
