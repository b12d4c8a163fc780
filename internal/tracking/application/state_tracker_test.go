package application

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTracker(cfg Config) *StateTracker {
	return NewStateTracker(cfg, slog.Default())
}

func lifecycleState(orderID, symbol string, status orderdomain.OrderStatus) *lifecycledomain.OrderLifecycleState {
	state := lifecycledomain.NewOrderLifecycleState(&orderdomain.Order{
		OrderID:   orderID,
		Symbol:    symbol,
		Quantity:  dec("100"),
		Type:      orderdomain.OrderTypeMarket,
		Side:      orderdomain.OrderSideBuy,
		Status:    orderdomain.OrderStatusPending,
		CreatedAt: time.Now(),
	})
	state.Status = status
	return state
}

func TestTrackStateChange_PerOrderCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSnapshotsPerOrder = 5
	tracker := newTracker(cfg)
	ctx := context.Background()

	// 10 个事件只保留最近 5 条
	for i := 0; i < 10; i++ {
		state := lifecycleState("O-1", "AAPL", orderdomain.OrderStatusPending)
		state.FilledQuantity = decimal.NewFromInt(int64(i))
		tracker.TrackStateChange(ctx, state, lifecycledomain.EventCreated)
	}

	history := tracker.GetHistory("O-1", 0)
	if len(history) != 5 {
		t.Fatalf("expected exactly 5 snapshots, got %d", len(history))
	}
	for i, s := range history {
		want := decimal.NewFromInt(int64(5 + i))
		if !s.FilledQuantity.Equal(want) {
			t.Errorf("snapshot %d: expected filled %s, got %s", i, want, s.FilledQuantity)
		}
	}
	if tracker.SnapshotCount() != 5 {
		t.Errorf("global count must track evictions, got %d", tracker.SnapshotCount())
	}
}

func TestQueries(t *testing.T) {
	tracker := newTracker(DefaultConfig())
	ctx := context.Background()

	tracker.TrackStateChange(ctx, lifecycleState("O-1", "AAPL", orderdomain.OrderStatusPending), lifecycledomain.EventCreated)
	tracker.TrackStateChange(ctx, lifecycleState("O-1", "AAPL", orderdomain.OrderStatusPending), lifecycledomain.EventTriggered)
	tracker.TrackStateChange(ctx, lifecycleState("O-1", "AAPL", orderdomain.OrderStatusFilled), lifecycledomain.EventFilled)
	tracker.TrackStateChange(ctx, lifecycleState("O-2", "GOOGL", orderdomain.OrderStatusPending), lifecycledomain.EventCreated)

	current, ok := tracker.GetCurrentState("O-1")
	if !ok || current.Status != orderdomain.OrderStatusFilled {
		t.Fatalf("expected current FILLED, got %+v", current)
	}

	if ids := tracker.GetOrdersByStatus(orderdomain.OrderStatusPending); len(ids) != 1 || ids[0] != "O-2" {
		t.Errorf("by status: got %v", ids)
	}
	if ids := tracker.GetOrdersBySymbol("AAPL"); len(ids) != 1 || ids[0] != "O-1" {
		t.Errorf("by symbol: got %v", ids)
	}

	// pending, pending, filled 相邻去重为 pending, filled
	transitions := tracker.GetTransitions("O-1")
	if len(transitions) != 2 ||
		transitions[0] != orderdomain.OrderStatusPending ||
		transitions[1] != orderdomain.OrderStatusFilled {
		t.Errorf("transitions: got %v", transitions)
	}

	if events := tracker.GetRecentEvents(time.Minute); len(events) != 4 {
		t.Errorf("expected 4 recent events, got %d", len(events))
	}
	if events := tracker.GetRecentEvents(0); len(events) != 0 {
		t.Errorf("zero window must match nothing, got %d", len(events))
	}

	if _, ok := tracker.GetOrderDuration("O-1"); !ok {
		t.Error("expected duration for tracked order")
	}
	if _, ok := tracker.GetOrderDuration("missing"); ok {
		t.Error("expected no duration for unknown order")
	}
}

func TestGetFillRateBySymbol(t *testing.T) {
	tracker := newTracker(DefaultConfig())
	ctx := context.Background()

	tracker.TrackStateChange(ctx, lifecycleState("F-1", "AAPL", orderdomain.OrderStatusFilled), lifecycledomain.EventFilled)
	tracker.TrackStateChange(ctx, lifecycleState("F-2", "AAPL", orderdomain.OrderStatusCancelled), lifecycledomain.EventCancelled)
	tracker.TrackStateChange(ctx, lifecycleState("F-3", "AAPL", orderdomain.OrderStatusFilled), lifecycledomain.EventFilled)
	tracker.TrackStateChange(ctx, lifecycleState("F-4", "GOOGL", orderdomain.OrderStatusPending), lifecycledomain.EventCreated)

	rate := tracker.GetFillRateBySymbol("AAPL", time.Minute)
	if !rate.Equal(dec("2").Div(dec("3"))) {
		t.Errorf("expected 2/3, got %s", rate)
	}
	if !tracker.GetFillRateBySymbol("TSLA", time.Minute).IsZero() {
		t.Error("unknown symbol must yield zero rate")
	}
}

func TestCleanupOldData_KeepsTerminal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention = time.Hour
	tracker := newTracker(cfg)
	ctx := context.Background()

	tracker.TrackStateChange(ctx, lifecycleState("C-1", "AAPL", orderdomain.OrderStatusPending), lifecycledomain.EventCreated)
	tracker.TrackStateChange(ctx, lifecycleState("C-2", "AAPL", orderdomain.OrderStatusFilled), lifecycledomain.EventFilled)
	tracker.TrackStateChange(ctx, lifecycleState("C-3", "AAPL", orderdomain.OrderStatusPending), lifecycledomain.EventCreated)

	// 人为做旧 C-1（非终态）与 C-2（终态）
	tracker.mu.Lock()
	for _, id := range []string{"C-1", "C-2"} {
		for _, s := range tracker.journals[id].Items() {
			s.Timestamp = time.Now().Add(-2 * time.Hour)
		}
	}
	tracker.mu.Unlock()

	removed := tracker.CleanupOldData()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := tracker.GetCurrentState("C-1"); ok {
		t.Error("stale non-terminal order must be dropped entirely")
	}
	if _, ok := tracker.GetCurrentState("C-2"); !ok {
		t.Error("terminal snapshot must survive retention")
	}
	if _, ok := tracker.GetCurrentState("C-3"); !ok {
		t.Error("fresh snapshot must survive cleanup")
	}
	if tracker.SnapshotCount() != 2 {
		t.Errorf("expected 2 snapshots left, got %d", tracker.SnapshotCount())
	}
}

func TestBudgetForcesCleanup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalSnapshots = 10
	cfg.Retention = time.Nanosecond
	tracker := newTracker(cfg)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("B-%d", i)
		tracker.TrackStateChange(ctx, lifecycleState(id, "AAPL", orderdomain.OrderStatusPending), lifecycledomain.EventCreated)
		time.Sleep(time.Microsecond)
	}
	if tracker.SnapshotCount() > 11 {
		t.Errorf("budget not enforced: %d snapshots", tracker.SnapshotCount())
	}
}

func TestStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	tracker := newTracker(cfg)

	ctx := context.Background()
	tracker.Start(ctx)
	tracker.Start(ctx) // 幂等
	time.Sleep(30 * time.Millisecond)
	tracker.Stop()
	tracker.Stop() // 幂等
}
