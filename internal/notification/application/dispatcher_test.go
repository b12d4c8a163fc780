package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	"github.com/wyfcoding/executioncore/internal/notification/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
)

type fakeSender struct {
	sent chan *domain.Notification
	err  error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan *domain.Notification, 16)}
}

func (f *fakeSender) Send(ctx context.Context, n *domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent <- n
	return nil
}

func filledState(symbol string) *lifecycledomain.OrderLifecycleState {
	qty := decimal.NewFromInt(100)
	state := lifecycledomain.NewOrderLifecycleState(&orderdomain.Order{
		OrderID:   "N-1",
		Symbol:    symbol,
		Quantity:  qty,
		Type:      orderdomain.OrderTypeMarket,
		Side:      orderdomain.OrderSideBuy,
		Status:    orderdomain.OrderStatusPending,
		CreatedAt: time.Now(),
	})
	state.Status = orderdomain.OrderStatusFilled
	state.FilledQuantity = qty
	state.RemainingQuantity = decimal.Zero
	return state
}

func fillRule(channels ...domain.Channel) *domain.NotificationRule {
	return &domain.NotificationRule{
		RuleID:   "rule-fill",
		Name:     "成交通知",
		Events:   []lifecycledomain.Event{lifecycledomain.EventFilled},
		Channels: channels,
		Priority: domain.PriorityNormal,
		Conditions: &domain.RuleConditions{
			Symbols: []string{"AAPL"},
		},
		Enabled: true,
	}
}

func TestHandleOrderEvent_SymbolCondition(t *testing.T) {
	d := NewNotificationDispatcher(DefaultConfig(), nil, slog.Default())
	d.AddRule(fillRule(domain.ChannelLog))
	ctx := context.Background()

	if got := d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventFilled); got != 1 {
		t.Errorf("AAPL fill must match the rule, enqueued %d", got)
	}
	if got := d.HandleOrderEvent(ctx, filledState("GOOGL"), lifecycledomain.EventFilled); got != 0 {
		t.Errorf("GOOGL fill must not match, enqueued %d", got)
	}
	// 事件不在规则列表内
	if got := d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventCancelled); got != 0 {
		t.Errorf("cancel event must not match a fill rule, enqueued %d", got)
	}
}

func TestHandleOrderEvent_DisabledAndMinQuantity(t *testing.T) {
	d := NewNotificationDispatcher(DefaultConfig(), nil, slog.Default())
	ctx := context.Background()

	rule := fillRule(domain.ChannelLog)
	rule.Enabled = false
	d.AddRule(rule)
	if got := d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventFilled); got != 0 {
		t.Errorf("disabled rule must not fire, enqueued %d", got)
	}

	min := decimal.NewFromInt(500)
	rule.Enabled = true
	rule.Conditions.MinQuantity = &min
	d.AddRule(rule)
	if got := d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventFilled); got != 0 {
		t.Errorf("quantity below minimum must not fire, enqueued %d", got)
	}
}

func TestDelivery_IndependentChannels(t *testing.T) {
	d := NewNotificationDispatcher(DefaultConfig(), nil, slog.Default())
	good := newFakeSender()
	bad := &fakeSender{err: errors.New("channel down")}
	d.RegisterSender(domain.ChannelLog, good)
	d.RegisterSender(domain.ChannelWebhook, bad)
	d.AddRule(fillRule(domain.ChannelLog, domain.ChannelWebhook, domain.ChannelKafka))

	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop()

	if got := d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventFilled); got != 1 {
		t.Fatalf("expected 1 enqueued, got %d", got)
	}

	select {
	case n := <-good.sent:
		if n.Title == "" || n.OrderID != "N-1" {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("log channel delivery timed out")
	}

	// 等待投递完成进入历史
	deadline := time.Now().Add(2 * time.Second)
	var delivered *domain.Notification
	for time.Now().Before(deadline) {
		if history := d.GetHistory(1); len(history) == 1 {
			delivered = history[0]
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if delivered == nil {
		t.Fatal("notification never reached history")
	}
	if delivered.SentAt == nil {
		t.Error("sent_at must be set when at least one channel succeeds")
	}
	// webhook 失败、kafka 未注册，log 成功
	if len(delivered.FailedChannels) != 2 {
		t.Errorf("expected 2 failed channels, got %v", delivered.FailedChannels)
	}
}

func TestDelivery_PanickingSender(t *testing.T) {
	d := NewNotificationDispatcher(DefaultConfig(), nil, slog.Default())
	d.RegisterSender(domain.ChannelLog, panicSender{})
	d.AddRule(fillRule(domain.ChannelLog))

	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop()

	d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventFilled)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if history := d.GetHistory(1); len(history) == 1 {
			n := history[0]
			if n.SentAt != nil {
				t.Error("panicking sender must count as failure")
			}
			if len(n.FailedChannels) != 1 {
				t.Errorf("expected 1 failed channel, got %v", n.FailedChannels)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("notification never reached history")
}

type panicSender struct{}

func (panicSender) Send(ctx context.Context, n *domain.Notification) error {
	panic("boom")
}

func TestHistoryBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	d := NewNotificationDispatcher(cfg, nil, slog.Default())
	good := newFakeSender()
	d.RegisterSender(domain.ChannelLog, good)
	d.AddRule(fillRule(domain.ChannelLog))

	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop()

	for i := 0; i < 6; i++ {
		d.HandleOrderEvent(ctx, filledState("AAPL"), lifecycledomain.EventFilled)
	}
	for i := 0; i < 6; i++ {
		select {
		case <-good.sent:
		case <-time.After(2 * time.Second):
			t.Fatal("delivery timed out")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(d.GetHistory(0)) == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("history must be capped at 3, got %d", len(d.GetHistory(0)))
}

func TestRemoveRule(t *testing.T) {
	d := NewNotificationDispatcher(DefaultConfig(), nil, slog.Default())
	d.AddRule(fillRule(domain.ChannelLog))
	if !d.RemoveRule("rule-fill") {
		t.Error("expected removal to succeed")
	}
	if d.RemoveRule("rule-fill") {
		t.Error("second removal must report false")
	}
	if got := d.HandleOrderEvent(context.Background(), filledState("AAPL"), lifecycledomain.EventFilled); got != 0 {
		t.Errorf("removed rule must not fire, enqueued %d", got)
	}
}
