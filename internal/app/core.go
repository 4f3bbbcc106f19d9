package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/cache"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/checkout"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/config"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/payment"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/recovery"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/storage"
)

// Core is the order engine without its transports: storage, services and
// recovery jobs. The CLI uses it directly for one-off recovery runs.
type Core struct {
	Store           *storage.Store
	Orders          *order.Service
	Payments        *payment.Orchestrator
	Refunds         *payment.Refunds
	Workflow        *checkout.Workflow
	PaymentRecovery *recovery.PaymentWorker
	RefundRecovery  *recovery.RefundWorker

	attempts *cache.RedisAttempts
}

func NewCore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Core, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var attempts payment.AttemptRegistry = payment.NewMemoryAttempts(cfg.Gateway.AttemptCapacity)
	var redisAttempts *cache.RedisAttempts
	if cfg.Gateway.RedisAddr != "" {
		redisAttempts, err = cache.NewRedisAttempts(ctx, cfg.Gateway.RedisAddr, cfg.ServiceName, cfg.Gateway.AttemptTTL)
		if err != nil {
			store.Close()
			return nil, err
		}
		attempts = redisAttempts
	}

	gateway := payment.NewFakeGateway(payment.FakeGatewayConfig{
		Provider:   cfg.Gateway.Provider,
		Mode:       cfg.Gateway.Mode,
		MinLatency: cfg.Gateway.MinLatency,
		MaxLatency: cfg.Gateway.MaxLatency,
		Attempts:   attempts,
	})

	orders := order.NewService(store)
	payments := payment.NewOrchestrator(store, gateway, logger, cfg.Gateway.Timeout)
	refunds := payment.NewRefunds(store, logger)

	return &Core{
		Store:    store,
		Orders:   orders,
		Payments: payments,
		Refunds:  refunds,
		Workflow: checkout.NewWorkflow(orders, payments, logger),
		PaymentRecovery: recovery.NewPaymentWorker(store, payments, recovery.PaymentConfig{
			StuckThreshold: cfg.Recovery.StuckThreshold,
			BatchSize:      cfg.Recovery.BatchSize,
			ClaimLease:     cfg.Recovery.ClaimLease,
		}, logger),
		RefundRecovery: recovery.NewRefundWorker(store, refunds, recovery.RefundConfig{
			BatchSize:  cfg.Recovery.BatchSize,
			ClaimLease: cfg.Recovery.ClaimLease,
		}, logger),
		attempts: redisAttempts,
	}, nil
}

func (c *Core) Close() {
	if c.attempts != nil {
		_ = c.attempts.Close()
	}
	c.Store.Close()
}
