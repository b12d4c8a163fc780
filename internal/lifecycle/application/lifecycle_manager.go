// Package application 订单生命周期管理服务。
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	"github.com/wyfcoding/pkg/metrics"
)

// EventCallback 生命周期事件回调。同步调用，异常被隔离。
type EventCallback func(state *domain.OrderLifecycleState, event domain.Event)

// LifecycleManager 订单状态机的权威管理者。
// active/completed 两个索引由同一把互斥锁保护；终态订单恰好归档一次。
type LifecycleManager struct {
	mu        sync.Mutex
	active    map[string]*domain.OrderLifecycleState
	completed map[string]*domain.OrderLifecycleState
	subs      map[uint64]EventCallback
	nextSubID uint64
	archive   domain.ArchiveRepository // 可为 nil（归档持久化由外部协作方提供）
	metrics   *orderMetrics
	logger    *slog.Logger
}

// NewLifecycleManager 构造函数。m 为 nil 时不记录业务指标。
func NewLifecycleManager(archive domain.ArchiveRepository, m *metrics.Metrics, logger *slog.Logger) *LifecycleManager {
	return &LifecycleManager{
		active:    make(map[string]*domain.OrderLifecycleState),
		completed: make(map[string]*domain.OrderLifecycleState),
		subs:      make(map[uint64]EventCallback),
		archive:   archive,
		metrics:   newOrderMetrics(m),
		logger:    logger.With("module", "lifecycle_manager"),
	}
}

// RegisterCallback 注册事件回调，返回用于退订的句柄函数。
func (m *LifecycleManager) RegisterCallback(cb EventCallback) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// CreateOrder 开始追踪一个新订单。重复 ID 或缺失 ID 返回 LifecycleError。
func (m *LifecycleManager) CreateOrder(ctx context.Context, order *orderdomain.Order) (*domain.OrderLifecycleState, error) {
	if order.OrderID == "" {
		return nil, domain.NewLifecycleError("", domain.ErrOrderIDMissing, "")
	}

	m.mu.Lock()
	if _, ok := m.active[order.OrderID]; ok {
		m.mu.Unlock()
		return nil, domain.NewLifecycleError(order.OrderID, domain.ErrDuplicateOrder, "")
	}
	if _, ok := m.completed[order.OrderID]; ok {
		m.mu.Unlock()
		return nil, domain.NewLifecycleError(order.OrderID, domain.ErrDuplicateOrder, "")
	}
	state := domain.NewOrderLifecycleState(order)
	m.active[order.OrderID] = state
	snapshot := state.Snapshot()
	callbacks := m.callbackList()
	m.mu.Unlock()

	m.metrics.orderCreated(string(order.Type))
	m.logger.InfoContext(ctx, "order lifecycle created",
		"order_id", order.OrderID, "symbol", order.Symbol, "type", order.Type)
	m.fireCallbacks(snapshot, domain.EventCreated, callbacks)
	return snapshot, nil
}

// TransitionOrder 执行一次校验过的状态迁移。
func (m *LifecycleManager) TransitionOrder(ctx context.Context, orderID string, newStatus orderdomain.OrderStatus, event domain.Event, details, initiator string) error {
	m.mu.Lock()
	state, ok := m.active[orderID]
	if !ok {
		if _, done := m.completed[orderID]; done {
			m.mu.Unlock()
			return domain.NewLifecycleError(orderID, domain.ErrInvalidTransition, "order is terminal")
		}
		m.mu.Unlock()
		return domain.NewLifecycleError(orderID, domain.ErrOrderNotFound, "")
	}

	if err := state.ApplyTransition(ctx, newStatus, event, details, initiator); err != nil {
		m.mu.Unlock()
		return err
	}

	var archived *domain.OrderLifecycleState
	if state.IsTerminal {
		delete(m.active, orderID)
		m.completed[orderID] = state
		archived = state
	}
	snapshot := state.Snapshot()
	callbacks := m.callbackList()
	m.mu.Unlock()

	if archived != nil {
		m.metrics.orderClosed()
	}
	m.logger.InfoContext(ctx, "order state transition",
		"order_id", orderID, "to", newStatus, "event", event, "initiator", initiator)

	if archived != nil && m.archive != nil {
		if err := m.archive.Save(ctx, snapshot); err != nil {
			m.logger.ErrorContext(ctx, "failed to archive terminal order",
				"order_id", orderID, "error", err)
		}
	}
	m.fireCallbacks(snapshot, event, callbacks)
	return nil
}

// UpdateFillDetails 累计成交数量并重算加权平均成交价，随后迁移到
// FILLED 或 PARTIALLY_FILLED。不变量：filled + remaining == abs(原始数量)。
func (m *LifecycleManager) UpdateFillDetails(ctx context.Context, orderID string, filledQty, fillPrice, commission decimal.Decimal) error {
	if !filledQty.IsPositive() {
		return domain.NewLifecycleError(orderID, domain.ErrInvalidFill, filledQty.String())
	}

	m.mu.Lock()
	state, ok := m.active[orderID]
	if !ok {
		m.mu.Unlock()
		return domain.NewLifecycleError(orderID, domain.ErrOrderNotFound, "")
	}

	abs := state.Order.AbsQuantity()
	newFilled := state.FilledQuantity.Add(filledQty)
	if newFilled.GreaterThan(abs) {
		m.mu.Unlock()
		return domain.NewLifecycleError(orderID, domain.ErrOverfill,
			fmt.Sprintf("filled %s > quantity %s", newFilled, abs))
	}

	remaining := abs.Sub(newFilled)
	target := orderdomain.OrderStatusPartiallyFilled
	event := domain.EventPartiallyFilled
	if remaining.IsZero() {
		target = orderdomain.OrderStatusFilled
		event = domain.EventFilled
	}

	// 先迁移后记账：迁移被拒绝时成交字段保持原值
	details := fmt.Sprintf("filled %s @ %s", filledQty, fillPrice)
	if err := state.ApplyTransition(ctx, target, event, details, domain.InitiatorMarket); err != nil {
		m.mu.Unlock()
		return err
	}

	// 加权平均：Σ(qty_i × price_i) / Σ qty_i
	notional := state.AverageFillPrice.Mul(state.FilledQuantity).Add(fillPrice.Mul(filledQty))
	state.FilledQuantity = newFilled
	state.RemainingQuantity = remaining
	state.AverageFillPrice = notional.Div(newFilled)
	state.TotalCommission = state.TotalCommission.Add(commission)

	var archived *domain.OrderLifecycleState
	if state.IsTerminal {
		delete(m.active, orderID)
		m.completed[orderID] = state
		archived = state
	}
	snapshot := state.Snapshot()
	callbacks := m.callbackList()
	m.mu.Unlock()

	m.metrics.tradeExecuted(snapshot.Order.Symbol)
	if archived != nil {
		m.metrics.orderClosed()
	}
	m.logger.InfoContext(ctx, "order fill recorded",
		"order_id", orderID, "filled_qty", filledQty, "fill_price", fillPrice, "status", target)

	if archived != nil && m.archive != nil {
		if err := m.archive.Save(ctx, snapshot); err != nil {
			m.logger.ErrorContext(ctx, "failed to archive terminal order",
				"order_id", orderID, "error", err)
		}
	}
	m.fireCallbacks(snapshot, event, callbacks)
	return nil
}

// CancelOrder 取消订单。
func (m *LifecycleManager) CancelOrder(ctx context.Context, orderID, reason string) error {
	return m.TransitionOrder(ctx, orderID, orderdomain.OrderStatusCancelled,
		domain.EventCancelled, reason, domain.InitiatorUser)
}

// RejectOrder 拒绝订单并追加可读原因。
func (m *LifecycleManager) RejectOrder(ctx context.Context, orderID, reason string) error {
	m.mu.Lock()
	if state, ok := m.active[orderID]; ok {
		state.AppendError(reason)
	}
	m.mu.Unlock()
	return m.TransitionOrder(ctx, orderID, orderdomain.OrderStatusRejected,
		domain.EventRejected, reason, domain.InitiatorSystem)
}

// ExpireOrder 订单过期。
func (m *LifecycleManager) ExpireOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	if state, ok := m.active[orderID]; ok {
		state.AppendError("order expired")
	}
	m.mu.Unlock()
	return m.TransitionOrder(ctx, orderID, orderdomain.OrderStatusExpired,
		domain.EventExpired, "order expired", domain.InitiatorSystem)
}

// TriggerOrder 条件单触发。
func (m *LifecycleManager) TriggerOrder(ctx context.Context, orderID, details string) error {
	return m.TransitionOrder(ctx, orderID, orderdomain.OrderStatusTriggered,
		domain.EventTriggered, details, domain.InitiatorMarket)
}

// GetOrderState 返回订单当前生命周期状态快照。
func (m *LifecycleManager) GetOrderState(orderID string) (*domain.OrderLifecycleState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.active[orderID]; ok {
		return state.Snapshot(), true
	}
	if state, ok := m.completed[orderID]; ok {
		return state.Snapshot(), true
	}
	return nil, false
}

// GetOrder 返回订单快照（触发引擎重新加载权威订单用）。
func (m *LifecycleManager) GetOrder(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	state, ok := m.GetOrderState(orderID)
	if !ok {
		return nil, domain.NewLifecycleError(orderID, domain.ErrOrderNotFound, "")
	}
	order := state.Order
	order.Status = state.Status
	return &order, nil
}

// ActiveCount 活跃订单数量。
func (m *LifecycleManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// GetStatistics 按状态统计订单数量。
func (m *LifecycleManager) GetStatistics() map[orderdomain.OrderStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[orderdomain.OrderStatus]int)
	for _, state := range m.active {
		stats[state.Status]++
	}
	for _, state := range m.completed {
		stats[state.Status]++
	}
	return stats
}

// CleanupCompletedOrders 清理超过保留期的终态订单，返回清理数量。
func (m *LifecycleManager) CleanupCompletedOrders(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, state := range m.completed {
		if state.UpdatedAt.Before(cutoff) {
			delete(m.completed, id)
			removed++
		}
	}
	return removed
}

func (m *LifecycleManager) callbackList() []EventCallback {
	callbacks := make([]EventCallback, 0, len(m.subs))
	for _, cb := range m.subs {
		callbacks = append(callbacks, cb)
	}
	return callbacks
}

// fireCallbacks 同步调用回调；单个回调 panic 被捕获并记录，不阻断其他回调。
func (m *LifecycleManager) fireCallbacks(state *domain.OrderLifecycleState, event domain.Event, callbacks []EventCallback) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("lifecycle callback panicked",
						"order_id", state.Order.OrderID, "event", event, "panic", r)
				}
			}()
			cb(state, event)
		}()
	}
}
