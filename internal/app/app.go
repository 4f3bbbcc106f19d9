package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/config"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/httpapi"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/messaging"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/recovery"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/websocket"
)

type App struct {
	*Core

	cfg       config.Config
	logger    *slog.Logger
	wsHub     *websocket.Hub
	scheduler *recovery.Scheduler
	publisher messaging.Publisher
	outbox    *messaging.OutboxDispatcher
	consumer  *messaging.Consumer
	httpSrv   *http.Server
}

// New wires the HTTP server, recovery scheduler and, when ORDERS_RABBIT_URL
// is set, the outbox dispatcher and live timeline consumer.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Core:   core,
		cfg:    cfg,
		logger: logger,
		wsHub:  websocket.NewHub(),
		scheduler: recovery.NewScheduler(cfg.Recovery.Interval, logger,
			core.PaymentRecovery, core.RefundRecovery),
	}

	if cfg.RabbitURL != "" {
		publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.OrdersExchange)
		if err != nil {
			core.Close()
			return nil, err
		}
		consumer, err := messaging.NewRabbitConsumer(cfg.RabbitURL, cfg.OrdersExchange, cfg.TimelineQueue, logger)
		if err != nil {
			publisher.Close()
			core.Close()
			return nil, err
		}
		a.publisher = publisher
		a.consumer = consumer
		a.outbox = messaging.NewOutboxDispatcher(messaging.NewPgOutbox(core.Store.Pool()), publisher, messaging.DispatcherConfig{
			Interval:  cfg.OutboxInterval,
			BatchSize: cfg.OutboxBatchSize,
		}, logger)
	} else {
		logger.Warn("ORDERS_RABBIT_URL empty, live timeline disabled")
	}

	api := httpapi.NewServer(httpapi.Deps{
		Checkouts:        core.Workflow,
		Orders:           core.Orders,
		PaymentRecovery:  core.PaymentRecovery,
		RefundRecovery:   core.RefundRecovery,
		TimelineStreamer: http.HandlerFunc(websocket.NewHandler(a.wsHub, core.Orders, logger).ServeWS),
	}, logger)
	a.httpSrv = httpapi.WithServer(ctx, cfg.HTTPAddr, api)

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go a.wsHub.Run(ctx)
	a.scheduler.Start(ctx)

	if a.outbox != nil {
		go a.outbox.Run(ctx)
		go func() {
			if err := a.consumer.Start(ctx, a.wsHub.HandleEvent); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		a.logger.Info("order engine listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close drains HTTP, waits for in-flight recovery runs and releases
// connections. ctx must already be cancelled for the scheduler to stop.
func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	a.scheduler.Wait()
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	a.Core.Close()
}

// Run builds the app and serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close(ctx)

	return a.Run(ctx)
}
