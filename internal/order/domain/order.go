// Package domain 订单领域模型：订单实体、类型与状态定义。
// 订单由调用方（执行/API 层）持有，核心只读取；转换操作产生新的派生订单。
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStopLoss     OrderType = "STOP_LOSS"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

// OrderSide 买卖方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus 订单生命周期状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusTriggered       OrderStatus = "TRIGGERED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal 是否为终态（无后续迁移）
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order 订单实体
// 条件单的数量符号编码方向意图：正数为保护性（平多）止损，负数为买入方向止损。
type Order struct {
	// OrderID 订单 ID
	OrderID string `json:"order_id"`
	// Symbol 标的符号
	Symbol string `json:"symbol"`
	// Quantity 带符号数量
	Quantity decimal.Decimal `json:"quantity"`
	// Side 买卖方向（转换后的可执行订单才有意义）
	Side OrderSide `json:"side,omitempty"`
	// Type 订单类型
	Type OrderType `json:"type"`
	// Price 限价（可空）
	Price *decimal.Decimal `json:"price,omitempty"`
	// StopPrice 止损触发价（可空）
	StopPrice *decimal.Decimal `json:"stop_price,omitempty"`
	// TrailPercent 跟踪百分比（与 TrailAmount 二选一）
	TrailPercent *decimal.Decimal `json:"trail_percent,omitempty"`
	// TrailAmount 跟踪金额（与 TrailPercent 二选一）
	TrailAmount *decimal.Decimal `json:"trail_amount,omitempty"`
	// Status 当前状态
	Status OrderStatus `json:"status"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`
}

// IsProtective 是否为保护性止损（正数量，价格下跌时平多仓）
func (o *Order) IsProtective() bool {
	return o.Quantity.IsPositive()
}

// AbsQuantity 数量绝对值
func (o *Order) AbsQuantity() decimal.Decimal {
	return o.Quantity.Abs()
}

// IsTriggerOrder 是否为条件触发订单
func (o *Order) IsTriggerOrder() bool {
	switch o.Type {
	case OrderTypeStopLoss, OrderTypeStopLimit, OrderTypeTrailingStop:
		return true
	}
	return false
}

// Clone 拷贝订单（指针字段深拷贝）
func (o *Order) Clone() *Order {
	dup := *o
	dup.Price = cloneDecimal(o.Price)
	dup.StopPrice = cloneDecimal(o.StopPrice)
	dup.TrailPercent = cloneDecimal(o.TrailPercent)
	dup.TrailAmount = cloneDecimal(o.TrailAmount)
	return &dup
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
