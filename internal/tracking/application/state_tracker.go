// Package application 状态追踪器：面向观测的快照日志与定时清理。
package application

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	"github.com/wyfcoding/executioncore/internal/tracking/domain"
)

// Config 追踪器容量与清理参数
type Config struct {
	// MaxSnapshotsPerOrder 每单环形日志容量
	MaxSnapshotsPerOrder int
	// MaxTotalSnapshots 全局快照预算，超过即触发清理
	MaxTotalSnapshots int
	// Retention 非终态快照保留时长
	Retention time.Duration
	// CleanupInterval 后台清理周期
	CleanupInterval time.Duration
}

// DefaultConfig 默认参数。
func DefaultConfig() Config {
	return Config{
		MaxSnapshotsPerOrder: 50,
		MaxTotalSnapshots:    10000,
		Retention:            24 * time.Hour,
		CleanupInterval:      time.Hour,
	}
}

// StateTracker 独立于生命周期管理器的快照日志。
// 一致性为尽力而为：只记录调用方送达的状态变更，不反查权威状态。
type StateTracker struct {
	mu       sync.Mutex
	cfg      Config
	journals map[string]*domain.SnapshotRing
	current  map[string]*domain.OrderStateSnapshot
	total    int
	logger   *slog.Logger

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewStateTracker 构造函数。
func NewStateTracker(cfg Config, logger *slog.Logger) *StateTracker {
	if cfg.MaxSnapshotsPerOrder <= 0 {
		cfg.MaxSnapshotsPerOrder = 50
	}
	if cfg.MaxTotalSnapshots <= 0 {
		cfg.MaxTotalSnapshots = 10000
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &StateTracker{
		cfg:      cfg,
		journals: make(map[string]*domain.SnapshotRing),
		current:  make(map[string]*domain.OrderStateSnapshot),
		logger:   logger.With("module", "state_tracker"),
	}
}

// TrackStateChange 追加一条快照并更新当前状态缓存。
func (t *StateTracker) TrackStateChange(ctx context.Context, state *lifecycledomain.OrderLifecycleState, event lifecycledomain.Event) {
	snapshot := &domain.OrderStateSnapshot{
		OrderID:        state.Order.OrderID,
		Symbol:         state.Order.Symbol,
		Status:         state.Status,
		Event:          event,
		Quantity:       state.Order.Quantity,
		FilledQuantity: state.FilledQuantity,
		Timestamp:      time.Now(),
	}
	if len(state.ErrorMessages) > 0 {
		snapshot.Metadata = map[string]string{
			"last_error": state.ErrorMessages[len(state.ErrorMessages)-1],
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ring, ok := t.journals[snapshot.OrderID]
	if !ok {
		ring = domain.NewSnapshotRing(t.cfg.MaxSnapshotsPerOrder)
		t.journals[snapshot.OrderID] = ring
	}
	if !ring.Push(snapshot) {
		t.total++
	}
	t.current[snapshot.OrderID] = snapshot

	if t.total > t.cfg.MaxTotalSnapshots {
		removed := t.cleanupLocked(time.Now().Add(-t.cfg.Retention))
		t.logger.WarnContext(ctx, "snapshot budget exceeded, cleanup forced",
			"total", t.total, "removed", removed)
	}
}

// GetCurrentState 某订单最近一次快照。
func (t *StateTracker) GetCurrentState(orderID string) (*domain.OrderStateSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.current[orderID]
	if !ok {
		return nil, false
	}
	dup := *s
	return &dup, true
}

// GetHistory 某订单按时间先后排列的快照历史，limit<=0 表示不限。
func (t *StateTracker) GetHistory(orderID string, limit int) []*domain.OrderStateSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	ring, ok := t.journals[orderID]
	if !ok {
		return nil
	}
	items := ring.Items()
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]*domain.OrderStateSnapshot, len(items))
	for i, s := range items {
		dup := *s
		out[i] = &dup
	}
	return out
}

// GetOrdersByStatus 当前处于指定状态的订单 ID 列表。
func (t *StateTracker) GetOrdersByStatus(status orderdomain.OrderStatus) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for id, s := range t.current {
		if s.Status == status {
			out = append(out, id)
		}
	}
	return out
}

// GetOrdersBySymbol 当前快照属于指定标的的订单 ID 列表。
func (t *StateTracker) GetOrdersBySymbol(symbol string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for id, s := range t.current {
		if s.Symbol == symbol {
			out = append(out, id)
		}
	}
	return out
}

// GetRecentEvents 时间窗口内的全部快照。
func (t *StateTracker) GetRecentEvents(window time.Duration) []*domain.OrderStateSnapshot {
	cutoff := time.Now().Add(-window)
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*domain.OrderStateSnapshot
	for _, ring := range t.journals {
		for _, s := range ring.Items() {
			if s.Timestamp.After(cutoff) {
				dup := *s
				out = append(out, &dup)
			}
		}
	}
	return out
}

// GetTransitions 某订单相邻去重后的状态序列。
func (t *StateTracker) GetTransitions(orderID string) []orderdomain.OrderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ring, ok := t.journals[orderID]
	if !ok {
		return nil
	}
	var out []orderdomain.OrderStatus
	for _, s := range ring.Items() {
		if len(out) == 0 || out[len(out)-1] != s.Status {
			out = append(out, s.Status)
		}
	}
	return out
}

// GetOrderDuration 订单从首个快照到终态（未终结则到当前时刻）的时长。
func (t *StateTracker) GetOrderDuration(orderID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ring, ok := t.journals[orderID]
	if !ok || ring.Len() == 0 {
		return 0, false
	}
	items := ring.Items()
	first := items[0].Timestamp
	last := items[len(items)-1]
	if last.IsTerminal() {
		return last.Timestamp.Sub(first), true
	}
	return time.Since(first), true
}

// GetFillRateBySymbol 窗口内某标的订单的成交率（当前状态为 FILLED 的比例）。
func (t *StateTracker) GetFillRateBySymbol(symbol string, window time.Duration) decimal.Decimal {
	cutoff := time.Now().Add(-window)
	t.mu.Lock()
	defer t.mu.Unlock()

	total, filled := 0, 0
	for _, s := range t.current {
		if s.Symbol != symbol || !s.Timestamp.After(cutoff) {
			continue
		}
		total++
		if s.Status == orderdomain.OrderStatusFilled {
			filled++
		}
	}
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(filled)).Div(decimal.NewFromInt(int64(total)))
}

// SnapshotCount 全局快照总数。
func (t *StateTracker) SnapshotCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// CleanupOldData 移除保留期外的非终态快照；日志清空的订单整体移除。
func (t *StateTracker) CleanupOldData() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleanupLocked(time.Now().Add(-t.cfg.Retention))
}

func (t *StateTracker) cleanupLocked(cutoff time.Time) int {
	removed := 0
	for id, ring := range t.journals {
		removed += ring.Prune(func(s *domain.OrderStateSnapshot) bool {
			// 终态快照始终保留
			return s.IsTerminal() || s.Timestamp.After(cutoff)
		})
		if ring.Len() == 0 {
			delete(t.journals, id)
			delete(t.current, id)
		}
	}
	t.total -= removed
	return removed
}

// Start 启动后台清理循环。单次迭代失败不会终止进程。
func (t *StateTracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.stop = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.cleanupLoop(ctx)
}

// Stop 停止清理循环并等待其退出。
func (t *StateTracker) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.stop)
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *StateTracker) cleanupLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runCleanupOnce(ctx)
		}
	}
}

func (t *StateTracker) runCleanupOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.ErrorContext(ctx, "cleanup iteration panicked",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	removed := t.CleanupOldData()
	if removed > 0 {
		t.logger.InfoContext(ctx, "snapshot cleanup finished", "removed", removed)
	}
}
