// Package domain 通知领域模型：规则、通知实体与渠道发送器接口。
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
)

// Channel 通知渠道
type Channel string

const (
	ChannelLog       Channel = "log"
	ChannelWebSocket Channel = "websocket"
	ChannelWebhook   Channel = "webhook"
	ChannelKafka     Channel = "kafka"
)

// Priority 通知优先级
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// RuleConditions 规则条件谓词。全部可选，全部 AND 组合，缺省即全匹配。
type RuleConditions struct {
	Symbols     []string                  `json:"symbols,omitempty"`
	OrderTypes  []orderdomain.OrderType   `json:"order_types,omitempty"`
	MinQuantity *decimal.Decimal          `json:"min_quantity,omitempty"`
	Statuses    []orderdomain.OrderStatus `json:"statuses,omitempty"`
}

// Matches 生命周期状态是否满足全部条件。
func (c *RuleConditions) Matches(state *lifecycledomain.OrderLifecycleState) bool {
	if c == nil {
		return true
	}
	if len(c.Symbols) > 0 && !containsString(c.Symbols, state.Order.Symbol) {
		return false
	}
	if len(c.OrderTypes) > 0 && !containsType(c.OrderTypes, state.Order.Type) {
		return false
	}
	if c.MinQuantity != nil && state.Order.AbsQuantity().LessThan(*c.MinQuantity) {
		return false
	}
	if len(c.Statuses) > 0 && !containsStatus(c.Statuses, state.Status) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(list []orderdomain.OrderType, v orderdomain.OrderType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

func containsStatus(list []orderdomain.OrderStatus, v orderdomain.OrderStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// NotificationRule 命名通知规则。
type NotificationRule struct {
	RuleID     string                  `json:"rule_id"`
	Name       string                  `json:"name"`
	Events     []lifecycledomain.Event `json:"events"`
	Channels   []Channel               `json:"channels"`
	Priority   Priority                `json:"priority"`
	Conditions *RuleConditions         `json:"conditions,omitempty"`
	Enabled    bool                    `json:"enabled"`
}

// AppliesTo 规则是否对该事件与状态生效。
func (r *NotificationRule) AppliesTo(event lifecycledomain.Event, state *lifecycledomain.OrderLifecycleState) bool {
	if !r.Enabled {
		return false
	}
	matched := false
	for _, e := range r.Events {
		if e == event {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return r.Conditions.Matches(state)
}

// Notification 通知实体。由分发器独占管理，直至送达或重试耗尽。
type Notification struct {
	NotificationID string                `json:"notification_id"`
	RuleID         string                `json:"rule_id"`
	Event          lifecycledomain.Event `json:"event"`
	OrderID        string                `json:"order_id"`
	Title          string                `json:"title"`
	Message        string                `json:"message"`
	Priority       Priority              `json:"priority"`
	Channels       []Channel             `json:"channels"`
	Data           map[string]any        `json:"data,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	// SentAt 至少一个渠道送达后置位
	SentAt         *time.Time `json:"sent_at,omitempty"`
	FailedChannels []Channel  `json:"failed_channels,omitempty"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
}

// MarkChannelFailed 记录渠道送达失败。
func (n *Notification) MarkChannelFailed(ch Channel) {
	for _, f := range n.FailedChannels {
		if f == ch {
			return
		}
	}
	n.FailedChannels = append(n.FailedChannels, ch)
}

// Sender 单一渠道发送器接口。
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// NotificationRepository 通知落库接口（外部持久化协作方的边界）。
type NotificationRepository interface {
	Save(ctx context.Context, n *Notification) error
}
