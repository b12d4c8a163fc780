package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// ConversionRecord 转换审计记录，仅追加。
type ConversionRecord struct {
	OrderID      string          `json:"order_id"`
	FromType     OrderType       `json:"from_type"`
	ToType       OrderType       `json:"to_type"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	ConvertedAt  time.Time       `json:"converted_at"`
}

// OrderConverter 将已触发的条件单转换为可执行的市价/限价单。
// 转换本身是无状态的纯变换；转换器仅额外持有按订单追加的审计记录。
type OrderConverter struct {
	mu      sync.Mutex
	records map[string][]ConversionRecord
}

// NewOrderConverter 构造函数。
func NewOrderConverter() *OrderConverter {
	return &OrderConverter{
		records: make(map[string][]ConversionRecord),
	}
}

// ConvertStopLossToMarket 将止损单转换为市价单。
// 触发条件必须已经满足，否则返回 ErrTriggerNotMet（前置校验而非轮询判定）。
func (c *OrderConverter) ConvertStopLossToMarket(order *Order, currentPrice decimal.Decimal, triggeredAt time.Time) (*Order, error) {
	if order.Type != OrderTypeStopLoss {
		return nil, newConversionError(order.OrderID, ErrUnsupportedOrderType)
	}
	if order.StopPrice == nil {
		return nil, newConversionError(order.OrderID, ErrMissingStopPrice)
	}
	if !StopTriggered(order.IsProtective(), currentPrice, *order.StopPrice) {
		return nil, newConversionError(order.OrderID, ErrTriggerNotMet)
	}

	converted := c.buildExecutable(order, OrderTypeMarket, nil)
	c.record(order, converted, currentPrice, triggeredAt)
	return converted, nil
}

// ConvertStopLimitToLimit 将止损限价单转换为限价单，保留原始限价。
func (c *OrderConverter) ConvertStopLimitToLimit(order *Order, currentPrice decimal.Decimal, triggeredAt time.Time) (*Order, error) {
	if order.Type != OrderTypeStopLimit {
		return nil, newConversionError(order.OrderID, ErrUnsupportedOrderType)
	}
	if order.StopPrice == nil {
		return nil, newConversionError(order.OrderID, ErrMissingStopPrice)
	}
	if order.Price == nil {
		return nil, newConversionError(order.OrderID, ErrMissingLimitPrice)
	}
	if !StopTriggered(order.IsProtective(), currentPrice, *order.StopPrice) {
		return nil, newConversionError(order.OrderID, ErrTriggerNotMet)
	}

	converted := c.buildExecutable(order, OrderTypeLimit, order.Price)
	c.record(order, converted, currentPrice, triggeredAt)
	return converted, nil
}

// UpdateTrailingStop 计算跟踪止损的新触发价，单向棘轮：
// 保护性止损只上移，买入方向止损只下移；首次计算直接播种。
// 返回新的触发价以及是否发生移动，不修改调用方的订单。
func (c *OrderConverter) UpdateTrailingStop(order *Order, currentPrice, highWaterMark decimal.Decimal) (decimal.Decimal, bool, error) {
	if order.Type != OrderTypeTrailingStop {
		return decimal.Zero, false, newConversionError(order.OrderID, ErrUnsupportedOrderType)
	}
	if (order.TrailPercent == nil) == (order.TrailAmount == nil) {
		return decimal.Zero, false, newConversionError(order.OrderID, ErrInvalidTrailConfig)
	}

	protective := order.IsProtective()
	ref := currentPrice
	if highWaterMark.IsPositive() {
		if protective && highWaterMark.GreaterThan(ref) {
			ref = highWaterMark
		}
		if !protective && highWaterMark.LessThan(ref) {
			ref = highWaterMark
		}
	}

	var candidate decimal.Decimal
	switch {
	case order.TrailPercent != nil && protective:
		candidate = ref.Mul(oneHundred.Sub(*order.TrailPercent)).Div(oneHundred)
	case order.TrailPercent != nil:
		candidate = ref.Mul(oneHundred.Add(*order.TrailPercent)).Div(oneHundred)
	case protective:
		candidate = ref.Sub(*order.TrailAmount)
	default:
		candidate = ref.Add(*order.TrailAmount)
	}

	if order.StopPrice == nil {
		return candidate, true, nil
	}
	current := *order.StopPrice
	if protective && candidate.GreaterThan(current) {
		return candidate, true, nil
	}
	if !protective && candidate.LessThan(current) {
		return candidate, true, nil
	}
	return current, false, nil
}

// ConvertTrailingStopToMarket 跟踪止损触发后无条件转换为市价单，方向由数量符号推断。
func (c *OrderConverter) ConvertTrailingStopToMarket(order *Order, currentPrice decimal.Decimal, triggeredAt time.Time) (*Order, error) {
	if order.Type != OrderTypeTrailingStop {
		return nil, newConversionError(order.OrderID, ErrUnsupportedOrderType)
	}

	converted := c.buildExecutable(order, OrderTypeMarket, nil)
	c.record(order, converted, currentPrice, triggeredAt)
	return converted, nil
}

// CanConvertOrder 订单类型是否支持转换。
func (c *OrderConverter) CanConvertOrder(order *Order) bool {
	return c.ValidateOrderForConversion(order) == nil
}

// ValidateOrderForConversion 按订单类型做必填字段静态校验。
func (c *OrderConverter) ValidateOrderForConversion(order *Order) error {
	switch order.Type {
	case OrderTypeStopLoss:
		if order.StopPrice == nil {
			return newConversionError(order.OrderID, ErrMissingStopPrice)
		}
	case OrderTypeStopLimit:
		if order.StopPrice == nil {
			return newConversionError(order.OrderID, ErrMissingStopPrice)
		}
		if order.Price == nil {
			return newConversionError(order.OrderID, ErrMissingLimitPrice)
		}
	case OrderTypeTrailingStop:
		if (order.TrailPercent == nil) == (order.TrailAmount == nil) {
			return newConversionError(order.OrderID, ErrInvalidTrailConfig)
		}
	default:
		return newConversionError(order.OrderID, ErrUnsupportedOrderType)
	}
	return nil
}

// GetConversionRequirements 返回指定订单类型转换所需的字段。
func (c *OrderConverter) GetConversionRequirements(orderType OrderType) []string {
	switch orderType {
	case OrderTypeStopLoss:
		return []string{"stop_price"}
	case OrderTypeStopLimit:
		return []string{"stop_price", "price"}
	case OrderTypeTrailingStop:
		return []string{"trail_percent|trail_amount"}
	}
	return nil
}

// GetConversionRecords 返回某订单的审计记录副本。
func (c *OrderConverter) GetConversionRecords(orderID string) []ConversionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := c.records[orderID]
	out := make([]ConversionRecord, len(records))
	copy(out, records)
	return out
}

// StopTriggered 方向性触发判定：
// 保护性止损在价格跌破触发价时触发，买入方向止损在价格升破触发价时触发。
func StopTriggered(protective bool, currentPrice, stopPrice decimal.Decimal) bool {
	if protective {
		return currentPrice.LessThanOrEqual(stopPrice)
	}
	return currentPrice.GreaterThanOrEqual(stopPrice)
}

func (c *OrderConverter) buildExecutable(order *Order, toType OrderType, limitPrice *decimal.Decimal) *Order {
	converted := order.Clone()
	converted.Type = toType
	converted.Quantity = order.AbsQuantity()
	if order.IsProtective() {
		converted.Side = OrderSideSell
	} else {
		converted.Side = OrderSideBuy
	}
	converted.Price = cloneDecimal(limitPrice)
	converted.StopPrice = nil
	converted.TrailPercent = nil
	converted.TrailAmount = nil
	converted.Status = OrderStatusPending
	return converted
}

func (c *OrderConverter) record(original, converted *Order, triggerPrice decimal.Decimal, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[original.OrderID] = append(c.records[original.OrderID], ConversionRecord{
		OrderID:      original.OrderID,
		FromType:     original.Type,
		ToType:       converted.Type,
		TriggerPrice: triggerPrice,
		ConvertedAt:  at,
	})
}
