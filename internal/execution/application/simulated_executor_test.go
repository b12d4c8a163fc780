package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	lifecycleapp "github.com/wyfcoding/executioncore/internal/lifecycle/application"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	simdomain "github.com/wyfcoding/executioncore/internal/simulation/domain"
	triggerdomain "github.com/wyfcoding/executioncore/internal/trigger/domain"
)

type fakeMarketData struct {
	quote *triggerdomain.Quote
	err   error
}

func (f *fakeMarketData) GetQuote(ctx context.Context, symbol string) (*triggerdomain.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func (f *fakeMarketData) IsMarketOpen(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeMarketData) IsStockHalted(ctx context.Context, symbol string) (bool, error) {
	return false, nil
}
func (f *fakeMarketData) IsCircuitBreakerActive(ctx context.Context) (bool, error) {
	return false, nil
}

func newExecutor(md *fakeMarketData) (*SimulatedExecutor, *lifecycleapp.LifecycleManager) {
	lifecycle := lifecycleapp.NewLifecycleManager(nil, nil, slog.Default())
	cfg := simdomain.DefaultConfig()
	cfg.Seed = 11
	cfg.PartialFillProbability = 0 // 全额成交，便于断言终态
	simulator := simdomain.NewMarketImpactSimulator(cfg)
	return NewSimulatedExecutor(lifecycle, simulator, md, slog.Default()), lifecycle
}

func marketSell(id string) *orderdomain.Order {
	return &orderdomain.Order{
		OrderID:   id,
		Symbol:    "AAPL",
		Quantity:  decimal.NewFromInt(100),
		Side:      orderdomain.OrderSideSell,
		Type:      orderdomain.OrderTypeMarket,
		Status:    orderdomain.OrderStatusPending,
		CreatedAt: time.Now(),
	}
}

func TestExecuteOrder_FillAppliedToLifecycle(t *testing.T) {
	md := &fakeMarketData{quote: &triggerdomain.Quote{
		Symbol:    "AAPL",
		LastPrice: decimal.NewFromInt(150),
		BidPrice:  decimal.RequireFromString("149.95"),
		AskPrice:  decimal.RequireFromString("150.05"),
		Volume:    decimal.NewFromInt(1000000),
	}}
	executor, lifecycle := newExecutor(md)
	ctx := context.Background()

	order := marketSell("X-1")
	if _, err := lifecycle.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := executor.ExecuteOrder(ctx, order); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	state, ok := lifecycle.GetOrderState("X-1")
	if !ok {
		t.Fatal("state missing")
	}
	if state.Status != orderdomain.OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", state.Status)
	}
	sum := state.FilledQuantity.Add(state.RemainingQuantity)
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Errorf("invariant broken: filled+remaining=%s", sum)
	}
	// 卖单成交价不高于买一价
	if state.AverageFillPrice.GreaterThan(md.quote.BidPrice) {
		t.Errorf("sell fill %s above bid", state.AverageFillPrice)
	}
	// 中途经过 TRIGGERED
	if len(state.Transitions) < 2 {
		t.Fatalf("expected triggered+filled transitions, got %d", len(state.Transitions))
	}
	if state.Transitions[0].ToStatus != orderdomain.OrderStatusTriggered {
		t.Errorf("first transition must be to TRIGGERED, got %s", state.Transitions[0].ToStatus)
	}
}

func TestExecuteOrder_QuoteFailureSurfaces(t *testing.T) {
	md := &fakeMarketData{err: errors.New("feed down")}
	executor, lifecycle := newExecutor(md)
	ctx := context.Background()

	order := marketSell("X-2")
	if _, err := lifecycle.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := executor.ExecuteOrder(ctx, order); err == nil {
		t.Fatal("quote failure must surface")
	}
	state, _ := lifecycle.GetOrderState("X-2")
	if state.Status != orderdomain.OrderStatusPending {
		t.Errorf("failed execution must leave order pending, got %s", state.Status)
	}
}
