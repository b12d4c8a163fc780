// Package domain 市场冲击模拟：滑点、部分成交与佣金的随机成交模型。
package domain

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	triggerdomain "github.com/wyfcoding/executioncore/internal/trigger/domain"
)

// MarketCondition 市场波动状态
type MarketCondition string

const (
	MarketConditionCalm           MarketCondition = "CALM"
	MarketConditionNormal         MarketCondition = "NORMAL"
	MarketConditionVolatile       MarketCondition = "VOLATILE"
	MarketConditionHighlyVolatile MarketCondition = "HIGHLY_VOLATILE"
)

// volatilityMultipliers 各市场状态下的滑点放大系数
var volatilityMultipliers = map[MarketCondition]float64{
	MarketConditionCalm:           0.5,
	MarketConditionNormal:         1.0,
	MarketConditionVolatile:       2.0,
	MarketConditionHighlyVolatile: 3.0,
}

var errNoBasePrice = errors.New("no usable base price for execution")

// Config 模拟器参数
type Config struct {
	// BaseSlippageBps 基础滑点（基点）
	BaseSlippageBps float64
	// VolumeImpactScale 订单量/日均量比例的滑点放大系数
	VolumeImpactScale float64
	// SpreadImpactScale 价差百分比的滑点放大系数
	SpreadImpactScale float64
	// PartialFillProbability 部分成交基础概率
	PartialFillProbability float64
	// PerShareCommission 每股佣金
	PerShareCommission decimal.Decimal
	// MaxCommission 单笔佣金上限
	MaxCommission decimal.Decimal
	// HistoryLimit 执行历史容量
	HistoryLimit int
	// Seed 随机种子（0 取当前时间）
	Seed int64
}

// DefaultConfig 默认参数。
func DefaultConfig() Config {
	return Config{
		BaseSlippageBps:        2.0,
		VolumeImpactScale:      10.0,
		SpreadImpactScale:      50.0,
		PartialFillProbability: 0.15,
		PerShareCommission:     decimal.NewFromFloat(0.005),
		MaxCommission:          decimal.NewFromInt(5),
		HistoryLimit:           1000,
	}
}

// ExecutionResult 单次模拟成交结果。
type ExecutionResult struct {
	OrderID           string          `json:"order_id"`
	Symbol            string          `json:"symbol"`
	FilledQuantity    decimal.Decimal `json:"filled_quantity"`
	FillPrice         decimal.Decimal `json:"fill_price"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	SlippageAmount    decimal.Decimal `json:"slippage_amount"`
	SlippageBps       decimal.Decimal `json:"slippage_bps"`
	Commission        decimal.Decimal `json:"commission"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	PartialFill       bool            `json:"partial_fill"`
	Condition         MarketCondition `json:"condition"`
	ExecutedAt        time.Time       `json:"executed_at"`
}

// Statistics 执行历史滚动统计。
type Statistics struct {
	Executions      int             `json:"executions"`
	AverageSlippage decimal.Decimal `json:"average_slippage_bps"`
	PartialFillRate decimal.Decimal `json:"partial_fill_rate"`
}

// MarketImpactSimulator 给定订单与行情，产生带滑点/部分成交/佣金的随机成交。
type MarketImpactSimulator struct {
	mu      sync.Mutex
	cfg     Config
	rng     *rand.Rand
	history []*ExecutionResult
}

// NewMarketImpactSimulator 构造函数。
func NewMarketImpactSimulator(cfg Config) *MarketImpactSimulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 1000
	}
	return &MarketImpactSimulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// SimulateExecution 模拟一笔成交。
func (s *MarketImpactSimulator) SimulateExecution(order *orderdomain.Order, quote *triggerdomain.Quote, condition MarketCondition, averageVolume decimal.Decimal) (*ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.basePrice(order, quote)
	if err != nil {
		return nil, err
	}

	quantity := order.AbsQuantity()
	slippageBps := s.slippageBps(quantity, base, quote, condition, averageVolume)

	slip := base.Mul(decimal.NewFromFloat(slippageBps)).Div(decimal.NewFromInt(10000))
	var fillPrice decimal.Decimal
	if order.Side == orderdomain.OrderSideBuy {
		fillPrice = base.Add(slip)
	} else {
		fillPrice = base.Sub(slip)
	}

	filled := quantity
	partial := false
	if s.drawPartialFill(order, quantity, condition, averageVolume) {
		ratio := 0.70 + s.rng.Float64()*0.25
		candidate := quantity.Mul(decimal.NewFromFloat(ratio)).Floor()
		if candidate.IsPositive() && candidate.LessThan(quantity) {
			filled = candidate
			partial = true
		}
	}

	commission := filled.Mul(s.cfg.PerShareCommission)
	if commission.GreaterThan(s.cfg.MaxCommission) {
		commission = s.cfg.MaxCommission
	}

	result := &ExecutionResult{
		OrderID:           order.OrderID,
		Symbol:            order.Symbol,
		FilledQuantity:    filled,
		FillPrice:         fillPrice,
		RemainingQuantity: quantity.Sub(filled),
		SlippageAmount:    fillPrice.Sub(base).Abs(),
		SlippageBps:       decimal.NewFromFloat(slippageBps),
		Commission:        commission,
		TotalCost:         filled.Mul(fillPrice).Add(commission),
		PartialFill:       partial,
		Condition:         condition,
		ExecutedAt:        time.Now(),
	}

	s.history = append(s.history, result)
	if len(s.history) > s.cfg.HistoryLimit {
		s.history = s.history[len(s.history)-s.cfg.HistoryLimit:]
	}
	return result, nil
}

// GetMarketCondition 按买卖价差宽度分为四档，开盘/收盘/午间附近向波动偏置一档。
func (s *MarketImpactSimulator) GetMarketCondition(quote *triggerdomain.Quote) MarketCondition {
	mid := quote.GetMidPrice()
	if !mid.IsPositive() {
		return MarketConditionNormal
	}
	spreadPct, _ := quote.GetSpread().Div(mid).Mul(decimal.NewFromInt(100)).Float64()

	var condition MarketCondition
	switch {
	case spreadPct < 0.05:
		condition = MarketConditionCalm
	case spreadPct < 0.2:
		condition = MarketConditionNormal
	case spreadPct < 0.5:
		condition = MarketConditionVolatile
	default:
		condition = MarketConditionHighlyVolatile
	}

	if quote.Timestamp > 0 && isVolatileSession(time.UnixMilli(quote.Timestamp)) {
		condition = escalate(condition)
	}
	return condition
}

// GetStatistics 滚动统计：平均滑点与部分成交率。
func (s *MarketImpactSimulator) GetStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{Executions: len(s.history)}
	if len(s.history) == 0 {
		return stats
	}

	sum := decimal.Zero
	partials := 0
	for _, r := range s.history {
		sum = sum.Add(r.SlippageBps)
		if r.PartialFill {
			partials++
		}
	}
	count := decimal.NewFromInt(int64(len(s.history)))
	stats.AverageSlippage = sum.Div(count)
	stats.PartialFillRate = decimal.NewFromInt(int64(partials)).Div(count)
	return stats
}

func (s *MarketImpactSimulator) basePrice(order *orderdomain.Order, quote *triggerdomain.Quote) (decimal.Decimal, error) {
	if order.Type == orderdomain.OrderTypeMarket {
		if order.Side == orderdomain.OrderSideBuy && quote.AskPrice.IsPositive() {
			return quote.AskPrice, nil
		}
		if order.Side == orderdomain.OrderSideSell && quote.BidPrice.IsPositive() {
			return quote.BidPrice, nil
		}
	} else if order.Price != nil && order.Price.IsPositive() {
		return *order.Price, nil
	}
	if quote.LastPrice.IsPositive() {
		return quote.LastPrice, nil
	}
	return decimal.Zero, errNoBasePrice
}

func (s *MarketImpactSimulator) slippageBps(quantity, base decimal.Decimal, quote *triggerdomain.Quote, condition MarketCondition, averageVolume decimal.Decimal) float64 {
	mult, ok := volatilityMultipliers[condition]
	if !ok {
		mult = 1.0
	}
	bps := s.cfg.BaseSlippageBps * mult

	if averageVolume.IsPositive() {
		ratio, _ := quantity.Div(averageVolume).Float64()
		bps += ratio * s.cfg.VolumeImpactScale
	}
	if base.IsPositive() {
		spreadPct, _ := quote.GetSpread().Div(base).Mul(decimal.NewFromInt(100)).Float64()
		bps += spreadPct * s.cfg.SpreadImpactScale
	}

	bps *= 0.8 + s.rng.Float64()*0.4
	if bps < 0.1 {
		bps = 0.1
	}
	return bps
}

// drawPartialFill 部分成交概率：大单加成、波动市翻倍、市价单减半。
func (s *MarketImpactSimulator) drawPartialFill(order *orderdomain.Order, quantity decimal.Decimal, condition MarketCondition, averageVolume decimal.Decimal) bool {
	p := s.cfg.PartialFillProbability
	if averageVolume.IsPositive() && quantity.GreaterThan(averageVolume.Mul(decimal.NewFromFloat(0.1))) {
		p *= 1.5
	}
	if condition == MarketConditionVolatile || condition == MarketConditionHighlyVolatile {
		p *= 2
	}
	if order.Type == orderdomain.OrderTypeMarket {
		p /= 2
	}
	if p > 1 {
		p = 1
	}
	return s.rng.Float64() < p
}

// isVolatileSession 开盘后半小时、收盘前半小时与午间为高波动时段。
func isVolatileSession(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	switch {
	case h == 9 && m >= 30, h == 15 && m >= 30:
		return true
	case h == 12:
		return true
	}
	return false
}

func escalate(c MarketCondition) MarketCondition {
	switch c {
	case MarketConditionCalm:
		return MarketConditionNormal
	case MarketConditionNormal:
		return MarketConditionVolatile
	}
	return c
}
