// Package domain 订单生命周期领域模型：状态机、迁移记录与聚合状态。
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	"github.com/wyfcoding/pkg/fsm"
)

// Event 生命周期事件
type Event string

const (
	EventCreated         Event = "ORDER_CREATED"
	EventTriggered       Event = "ORDER_TRIGGERED"
	EventFilled          Event = "ORDER_FILLED"
	EventPartiallyFilled Event = "ORDER_PARTIALLY_FILLED"
	EventCancelled       Event = "ORDER_CANCELLED"
	EventRejected        Event = "ORDER_REJECTED"
	EventExpired         Event = "ORDER_EXPIRED"
	EventError           Event = "ORDER_ERROR"
)

// Initiator 迁移发起方标签
const (
	InitiatorUser   = "user"
	InitiatorSystem = "system"
	InitiatorMarket = "market"
)

// OrderStateTransition 不可变迁移记录，仅追加。
type OrderStateTransition struct {
	FromStatus orderdomain.OrderStatus `json:"from_status"`
	ToStatus   orderdomain.OrderStatus `json:"to_status"`
	Event      Event                   `json:"event"`
	Timestamp  time.Time               `json:"timestamp"`
	Details    string                  `json:"details,omitempty"`
	Initiator  string                  `json:"initiator"`
}

// transitionTable 合法迁移表。终态无出边。
var transitionTable = map[orderdomain.OrderStatus][]orderdomain.OrderStatus{
	orderdomain.OrderStatusPending: {
		orderdomain.OrderStatusTriggered,
		orderdomain.OrderStatusFilled,
		orderdomain.OrderStatusPartiallyFilled,
		orderdomain.OrderStatusCancelled,
		orderdomain.OrderStatusRejected,
		orderdomain.OrderStatusExpired,
	},
	orderdomain.OrderStatusTriggered: {
		orderdomain.OrderStatusFilled,
		orderdomain.OrderStatusPartiallyFilled,
		orderdomain.OrderStatusCancelled,
		orderdomain.OrderStatusRejected,
		orderdomain.OrderStatusExpired,
	},
	orderdomain.OrderStatusPartiallyFilled: {
		orderdomain.OrderStatusPartiallyFilled,
		orderdomain.OrderStatusFilled,
		orderdomain.OrderStatusCancelled,
		orderdomain.OrderStatusExpired,
	},
}

// OrderLifecycleState 单个订单的生命周期聚合状态。
// 仅能通过 ApplyTransition 变更；进入终态后不可再变更。
type OrderLifecycleState struct {
	Order             orderdomain.Order       `json:"order"`
	Status            orderdomain.OrderStatus `json:"status"`
	Transitions       []OrderStateTransition  `json:"transitions"`
	FilledQuantity    decimal.Decimal         `json:"filled_quantity"`
	RemainingQuantity decimal.Decimal         `json:"remaining_quantity"`
	AverageFillPrice  decimal.Decimal         `json:"average_fill_price"`
	TotalCommission   decimal.Decimal         `json:"total_commission"`
	CanCancel         bool                    `json:"can_cancel"`
	CanModify         bool                    `json:"can_modify"`
	IsTerminal        bool                    `json:"is_terminal"`
	ErrorMessages     []string                `json:"error_messages,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`

	machine *fsm.Machine[orderdomain.OrderStatus, orderdomain.OrderStatus]
}

// NewOrderLifecycleState 基于订单快照创建初始生命周期状态。
func NewOrderLifecycleState(order *orderdomain.Order) *OrderLifecycleState {
	now := time.Now()
	s := &OrderLifecycleState{
		Order:             *order.Clone(),
		Status:            orderdomain.OrderStatusPending,
		FilledQuantity:    decimal.Zero,
		RemainingQuantity: order.AbsQuantity(),
		AverageFillPrice:  decimal.Zero,
		TotalCommission:   decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.refreshFlags()
	s.initFSM()
	return s
}

func (s *OrderLifecycleState) initFSM() {
	m := fsm.NewMachine[orderdomain.OrderStatus, orderdomain.OrderStatus](s.Status)
	// 事件名即目标状态名
	for from, targets := range transitionTable {
		for _, to := range targets {
			m.AddTransition(from, to, to)
		}
	}
	s.machine = m
}

// InitFSM 确保状态机已初始化（反序列化后恢复用）。
func (s *OrderLifecycleState) InitFSM() {
	if s.machine == nil {
		s.initFSM()
	}
}

// CanTransitionTo 目标状态是否在合法迁移表内。
func (s *OrderLifecycleState) CanTransitionTo(to orderdomain.OrderStatus) bool {
	for _, t := range transitionTable[s.Status] {
		if t == to {
			return true
		}
	}
	return false
}

// ApplyTransition 校验并执行一次状态迁移，追加迁移记录并刷新派生标志。
func (s *OrderLifecycleState) ApplyTransition(ctx context.Context, to orderdomain.OrderStatus, event Event, details, initiator string) error {
	s.InitFSM()
	if !s.CanTransitionTo(to) {
		return NewLifecycleError(s.Order.OrderID, ErrInvalidTransition,
			string(s.Status)+" -> "+string(to))
	}
	if err := s.machine.Trigger(ctx, to); err != nil {
		return NewLifecycleError(s.Order.OrderID, ErrInvalidTransition, err.Error())
	}

	now := time.Now()
	s.Transitions = append(s.Transitions, OrderStateTransition{
		FromStatus: s.Status,
		ToStatus:   to,
		Event:      event,
		Timestamp:  now,
		Details:    details,
		Initiator:  initiator,
	})
	s.Status = to
	s.UpdatedAt = now
	s.refreshFlags()
	return nil
}

// AppendError 追加一条用户可读的错误信息（拒绝/过期原因）。
func (s *OrderLifecycleState) AppendError(msg string) {
	if msg != "" {
		s.ErrorMessages = append(s.ErrorMessages, msg)
	}
}

// Snapshot 返回不含状态机的值拷贝，供并发读取方使用。
func (s *OrderLifecycleState) Snapshot() *OrderLifecycleState {
	dup := *s
	dup.machine = nil
	dup.Order = *s.Order.Clone()
	dup.Transitions = make([]OrderStateTransition, len(s.Transitions))
	copy(dup.Transitions, s.Transitions)
	dup.ErrorMessages = make([]string, len(s.ErrorMessages))
	copy(dup.ErrorMessages, s.ErrorMessages)
	return &dup
}

func (s *OrderLifecycleState) refreshFlags() {
	s.IsTerminal = s.Status.IsTerminal()
	s.CanCancel = s.CanTransitionTo(orderdomain.OrderStatusCancelled)
	s.CanModify = s.Status == orderdomain.OrderStatusPending ||
		s.Status == orderdomain.OrderStatusTriggered
}

// ArchiveRepository 终态订单归档仓储接口（外部持久化协作方的边界）。
type ArchiveRepository interface {
	// 保存归档记录
	Save(ctx context.Context, state *OrderLifecycleState) error
}
