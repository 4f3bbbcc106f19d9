package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
)

type Mode string

const (
	ModeAlwaysSuccess       Mode = "ALWAYS_SUCCESS"
	ModeAlwaysFail          Mode = "ALWAYS_FAIL"
	ModeFailOnceThenSucceed Mode = "FAIL_ONCE_THEN_SUCCESS"
	ModeError               Mode = "ERROR"
)

var ErrGatewayUnavailable = errors.New("payment provider unavailable")

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(raw))); m {
	case ModeAlwaysSuccess, ModeAlwaysFail, ModeFailOnceThenSucceed, ModeError:
		return m, nil
	case "":
		return ModeAlwaysSuccess, nil
	default:
		return "", fmt.Errorf("unknown gateway mode %q", raw)
	}
}

// AttemptRegistry remembers which payment ids were already charged once.
// Implementations must bound their memory.
type AttemptRegistry interface {
	// FirstAttempt records paymentID and reports whether it was unseen.
	FirstAttempt(ctx context.Context, paymentID string) (bool, error)
}

type FakeGatewayConfig struct {
	Provider   string
	Mode       Mode
	MinLatency time.Duration
	MaxLatency time.Duration
	Attempts   AttemptRegistry
}

// FakeGateway simulates a provider. It touches no storage.
type FakeGateway struct {
	provider   string
	mode       Mode
	minLatency time.Duration
	maxLatency time.Duration
	attempts   AttemptRegistry
}

func NewFakeGateway(cfg FakeGatewayConfig) *FakeGateway {
	if cfg.Provider == "" {
		cfg.Provider = "FAKE_GATEWAY"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAlwaysSuccess
	}
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	if cfg.Attempts == nil {
		cfg.Attempts = NewMemoryAttempts(10000)
	}
	return &FakeGateway{
		provider:   cfg.Provider,
		mode:       cfg.Mode,
		minLatency: cfg.MinLatency,
		maxLatency: cfg.MaxLatency,
		attempts:   cfg.Attempts,
	}
}

func (g *FakeGateway) Provider() string {
	return g.provider
}

func (g *FakeGateway) Charge(ctx context.Context, paymentID string) (order.GatewayResult, error) {
	select {
	case <-time.After(g.latency()):
	case <-ctx.Done():
		return order.ResultFailed, ctx.Err()
	}

	switch g.mode {
	case ModeAlwaysFail:
		return order.ResultFailed, nil
	case ModeError:
		return order.ResultFailed, ErrGatewayUnavailable
	case ModeFailOnceThenSucceed:
		first, err := g.attempts.FirstAttempt(ctx, paymentID)
		if err != nil {
			return order.ResultFailed, fmt.Errorf("attempt registry: %w", err)
		}
		if first {
			return order.ResultFailed, nil
		}
		return order.ResultSuccess, nil
	default:
		return order.ResultSuccess, nil
	}
}

func (g *FakeGateway) latency() time.Duration {
	spread := g.maxLatency - g.minLatency
	if spread <= 0 {
		return g.minLatency
	}
	return g.minLatency + rand.N(spread)
}
