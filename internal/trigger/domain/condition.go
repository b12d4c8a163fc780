// Package domain 条件触发领域模型与外部协作方接口。
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
)

// Quote 行情快照，由市场数据协作方提供。
type Quote struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"last_price"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	Volume    decimal.Decimal `json:"volume"`
	// Timestamp 毫秒时间戳
	Timestamp int64 `json:"timestamp"`
}

// GetSpread 买卖价差
func (q *Quote) GetSpread() decimal.Decimal {
	return q.AskPrice.Sub(q.BidPrice)
}

// GetMidPrice 中间价
func (q *Quote) GetMidPrice() decimal.Decimal {
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2))
}

// MarketDataProvider 市场数据协作方接口。
// 熔断/停牌/闭市为建议性门禁，每次检查时实时查询，不做缓存。
type MarketDataProvider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	IsMarketOpen(ctx context.Context) (bool, error)
	IsStockHalted(ctx context.Context, symbol string) (bool, error)
	IsCircuitBreakerActive(ctx context.Context) (bool, error)
}

// OrderExecutor 执行协作方接口。成交结果由执行方应用到生命周期管理器。
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, order *orderdomain.Order) error
}

// OrderLoader 按 ID 重新加载权威订单（触发时绝不信任可能过期的缓存副本）。
type OrderLoader interface {
	GetOrder(ctx context.Context, orderID string) (*orderdomain.Order, error)
}

// TriggerCondition 每个已注册条件单派生出的触发条件。
// 仅存在于触发引擎内部：注册时创建，触发/取消/过期时移除。
type TriggerCondition struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	// TriggerType 条件单类型
	TriggerType orderdomain.OrderType `json:"trigger_type"`
	// TriggerPrice 触发价；跟踪止损就地棘轮更新
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	// ResultType 触发后产生的可执行订单类型
	ResultType orderdomain.OrderType `json:"result_type"`
	// Protective 保护性（正数量）止损
	Protective bool `json:"protective"`
	// Seeded 跟踪止损是否已播种触发价
	Seeded    bool      `json:"seeded"`
	CreatedAt time.Time `json:"created_at"`

	// 跟踪止损棘轮计算所需的不变字段副本
	TrailPercent *decimal.Decimal `json:"trail_percent,omitempty"`
	TrailAmount  *decimal.Decimal `json:"trail_amount,omitempty"`
}

// ShouldTrigger 方向性触发判定。未播种的跟踪止损永不触发。
func (c *TriggerCondition) ShouldTrigger(currentPrice decimal.Decimal) bool {
	if c.TriggerType == orderdomain.OrderTypeTrailingStop && !c.Seeded {
		return false
	}
	return orderdomain.StopTriggered(c.Protective, currentPrice, c.TriggerPrice)
}
