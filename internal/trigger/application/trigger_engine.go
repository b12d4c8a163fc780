// Package application 条件触发引擎。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	"github.com/wyfcoding/executioncore/internal/trigger/domain"
)

// 注册错误
var (
	ErrConditionExists = errors.New("trigger condition already registered")
)

// TriggerEngine 持有按标的分组的活跃触发条件，并在行情更新时逐一评估。
//
// 并发约定：引擎假设同一订单同一时刻只有一次在途触发评估；
// 若需要避免重复执行，调用方不应对同一标的并发调用 CheckTriggerConditions。
type TriggerEngine struct {
	mu         sync.Mutex
	conditions map[string][]*domain.TriggerCondition
	converter  *orderdomain.OrderConverter
	orders     domain.OrderLoader
	marketData domain.MarketDataProvider
	executor   domain.OrderExecutor
	logger     *slog.Logger
}

// NewTriggerEngine 构造函数。
func NewTriggerEngine(
	converter *orderdomain.OrderConverter,
	orders domain.OrderLoader,
	marketData domain.MarketDataProvider,
	executor domain.OrderExecutor,
	logger *slog.Logger,
) *TriggerEngine {
	return &TriggerEngine{
		conditions: make(map[string][]*domain.TriggerCondition),
		converter:  converter,
		orders:     orders,
		marketData: marketData,
		executor:   executor,
		logger:     logger.With("module", "trigger_engine"),
	}
}

// AddTriggerOrder 校验条件单并派生触发条件。
func (e *TriggerEngine) AddTriggerOrder(ctx context.Context, order *orderdomain.Order) error {
	if err := e.converter.ValidateOrderForConversion(order); err != nil {
		return err
	}

	cond := &domain.TriggerCondition{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		TriggerType: order.Type,
		Protective:  order.IsProtective(),
		CreatedAt:   time.Now(),
	}
	switch order.Type {
	case orderdomain.OrderTypeStopLoss:
		cond.TriggerPrice = *order.StopPrice
		cond.Seeded = true
		cond.ResultType = orderdomain.OrderTypeMarket
	case orderdomain.OrderTypeStopLimit:
		cond.TriggerPrice = *order.StopPrice
		cond.Seeded = true
		cond.ResultType = orderdomain.OrderTypeLimit
	case orderdomain.OrderTypeTrailingStop:
		cond.ResultType = orderdomain.OrderTypeMarket
		if order.TrailPercent != nil {
			v := *order.TrailPercent
			cond.TrailPercent = &v
		}
		if order.TrailAmount != nil {
			v := *order.TrailAmount
			cond.TrailAmount = &v
		}
		if order.StopPrice != nil {
			cond.TriggerPrice = *order.StopPrice
			cond.Seeded = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.conditions[order.Symbol] {
		if existing.OrderID == order.OrderID {
			return fmt.Errorf("order %s: %w", order.OrderID, ErrConditionExists)
		}
	}
	e.conditions[order.Symbol] = append(e.conditions[order.Symbol], cond)

	e.logger.InfoContext(ctx, "trigger condition registered",
		"order_id", order.OrderID, "symbol", order.Symbol,
		"type", order.Type, "trigger_price", cond.TriggerPrice)
	return nil
}

// RemoveTriggerOrder 移除订单的触发条件（取消/过期时调用）。
func (e *TriggerEngine) RemoveTriggerOrder(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for symbol, conds := range e.conditions {
		for i, cond := range conds {
			if cond.OrderID == orderID {
				e.conditions[symbol] = append(conds[:i], conds[i+1:]...)
				if len(e.conditions[symbol]) == 0 {
					delete(e.conditions, symbol)
				}
				return true
			}
		}
	}
	return false
}

// GetConditions 返回某标的触发条件的副本。
func (e *TriggerEngine) GetConditions(symbol string) []domain.TriggerCondition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TriggerCondition, 0, len(e.conditions[symbol]))
	for _, cond := range e.conditions[symbol] {
		out = append(out, *cond)
	}
	return out
}

// CountConditions 活跃触发条件总数。
func (e *TriggerEngine) CountConditions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, conds := range e.conditions {
		total += len(conds)
	}
	return total
}

// CheckTriggerConditions 用最新价评估某标的的全部触发条件。
// 停牌/闭市/熔断时跳过执行；执行失败上抛给调用方且条件保留，等待下一次行情。
func (e *TriggerEngine) CheckTriggerConditions(ctx context.Context, symbol string, currentPrice decimal.Decimal) error {
	if skip, reason := e.marketGateClosed(ctx, symbol); skip {
		e.logger.InfoContext(ctx, "trigger check skipped", "symbol", symbol, "reason", reason)
		return nil
	}

	triggered := e.evaluate(ctx, symbol, currentPrice)
	if len(triggered) == 0 {
		return nil
	}

	var errs []error
	for _, cond := range triggered {
		if err := e.fire(ctx, cond, currentPrice); err != nil {
			// 条件保留，下一次行情仍可服务
			e.logger.ErrorContext(ctx, "trigger execution failed",
				"order_id", cond.OrderID, "symbol", symbol, "error", err)
			errs = append(errs, err)
			continue
		}
		e.RemoveTriggerOrder(cond.OrderID)
	}
	return errors.Join(errs...)
}

// marketGateClosed 实时查询建议性门禁；查询失败按放行处理并记录告警。
func (e *TriggerEngine) marketGateClosed(ctx context.Context, symbol string) (bool, string) {
	if halted, err := e.marketData.IsStockHalted(ctx, symbol); err != nil {
		e.logger.WarnContext(ctx, "halt check failed", "symbol", symbol, "error", err)
	} else if halted {
		return true, "stock halted"
	}
	if open, err := e.marketData.IsMarketOpen(ctx); err != nil {
		e.logger.WarnContext(ctx, "market open check failed", "error", err)
	} else if !open {
		return true, "market closed"
	}
	if active, err := e.marketData.IsCircuitBreakerActive(ctx); err != nil {
		e.logger.WarnContext(ctx, "circuit breaker check failed", "error", err)
	} else if active {
		return true, "circuit breaker active"
	}
	return false, ""
}

// evaluate 在锁内完成棘轮更新与触发判定，返回待执行条件的副本。
func (e *TriggerEngine) evaluate(ctx context.Context, symbol string, currentPrice decimal.Decimal) []*domain.TriggerCondition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var triggered []*domain.TriggerCondition
	for _, cond := range e.conditions[symbol] {
		if cond.TriggerType == orderdomain.OrderTypeTrailingStop {
			e.ratchetLocked(ctx, cond, currentPrice)
		}
		if cond.ShouldTrigger(currentPrice) {
			dup := *cond
			triggered = append(triggered, &dup)
		}
	}
	return triggered
}

// ratchetLocked 就地更新跟踪止损触发价（不移除条件）。
func (e *TriggerEngine) ratchetLocked(ctx context.Context, cond *domain.TriggerCondition, currentPrice decimal.Decimal) {
	ref := &orderdomain.Order{
		OrderID:      cond.OrderID,
		Symbol:       cond.Symbol,
		Type:         orderdomain.OrderTypeTrailingStop,
		TrailPercent: cond.TrailPercent,
		TrailAmount:  cond.TrailAmount,
	}
	if cond.Protective {
		ref.Quantity = decimal.NewFromInt(1)
	} else {
		ref.Quantity = decimal.NewFromInt(-1)
	}
	if cond.Seeded {
		stop := cond.TriggerPrice
		ref.StopPrice = &stop
	}

	newStop, moved, err := e.converter.UpdateTrailingStop(ref, currentPrice, decimal.Zero)
	if err != nil {
		e.logger.ErrorContext(ctx, "trailing stop update failed",
			"order_id", cond.OrderID, "error", err)
		return
	}
	if moved {
		cond.TriggerPrice = newStop
		cond.Seeded = true
	}
}

// fire 重新加载权威订单，转换并调用执行协作方。
func (e *TriggerEngine) fire(ctx context.Context, cond *domain.TriggerCondition, currentPrice decimal.Decimal) error {
	order, err := e.orders.GetOrder(ctx, cond.OrderID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", cond.OrderID, err)
	}

	now := time.Now()
	var converted *orderdomain.Order
	switch cond.TriggerType {
	case orderdomain.OrderTypeStopLoss:
		converted, err = e.converter.ConvertStopLossToMarket(order, currentPrice, now)
	case orderdomain.OrderTypeStopLimit:
		converted, err = e.converter.ConvertStopLimitToLimit(order, currentPrice, now)
	case orderdomain.OrderTypeTrailingStop:
		converted, err = e.converter.ConvertTrailingStopToMarket(order, currentPrice, now)
	default:
		err = fmt.Errorf("order %s: unexpected trigger type %s", cond.OrderID, cond.TriggerType)
	}
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "trigger condition fired",
		"order_id", cond.OrderID, "symbol", cond.Symbol,
		"trigger_price", cond.TriggerPrice, "current_price", currentPrice)

	if err := e.executor.ExecuteOrder(ctx, converted); err != nil {
		return fmt.Errorf("execute order %s: %w", cond.OrderID, err)
	}
	return nil
}
