// Package domain 订单状态快照与每单环形日志。
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
)

// OrderStateSnapshot 轻量状态快照，独立于生命周期聚合的观测记录。
type OrderStateSnapshot struct {
	OrderID        string                  `json:"order_id"`
	Symbol         string                  `json:"symbol,omitempty"`
	Status         orderdomain.OrderStatus `json:"status"`
	Event          lifecycledomain.Event   `json:"event"`
	Quantity       decimal.Decimal         `json:"quantity"`
	FilledQuantity decimal.Decimal         `json:"filled_quantity"`
	Timestamp      time.Time               `json:"timestamp"`
	Metadata       map[string]string       `json:"metadata,omitempty"`
}

// IsTerminal 快照是否处于终态。
func (s *OrderStateSnapshot) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// SnapshotRing 固定容量环形缓冲，满时覆盖最旧快照。
type SnapshotRing struct {
	buf  []*OrderStateSnapshot
	head int
	size int
}

// NewSnapshotRing 构造函数。
func NewSnapshotRing(capacity int) *SnapshotRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &SnapshotRing{buf: make([]*OrderStateSnapshot, capacity)}
}

// Push 追加快照，返回是否覆盖了最旧条目。
func (r *SnapshotRing) Push(s *OrderStateSnapshot) bool {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = s
		r.size++
		return false
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// Len 当前快照数。
func (r *SnapshotRing) Len() int {
	return r.size
}

// Latest 最新快照；空环返回 nil。
func (r *SnapshotRing) Latest() *OrderStateSnapshot {
	if r.size == 0 {
		return nil
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)]
}

// Items 按从旧到新返回全部快照。
func (r *SnapshotRing) Items() []*OrderStateSnapshot {
	out := make([]*OrderStateSnapshot, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Prune 只保留 keep 为真的快照，返回移除数量。
func (r *SnapshotRing) Prune(keep func(*OrderStateSnapshot) bool) int {
	if r.size == 0 {
		return 0
	}
	kept := make([]*OrderStateSnapshot, 0, r.size)
	for _, s := range r.Items() {
		if keep(s) {
			kept = append(kept, s)
		}
	}
	removed := r.size - len(kept)
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head = 0
	r.size = 0
	for _, s := range kept {
		r.Push(s)
	}
	return removed
}
