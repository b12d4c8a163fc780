// Package application 模拟执行服务：行情取价、冲击模拟与生命周期回填。
package application

import (
	"context"
	"fmt"
	"log/slog"

	lifecycleapp "github.com/wyfcoding/executioncore/internal/lifecycle/application"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	simdomain "github.com/wyfcoding/executioncore/internal/simulation/domain"
	triggerdomain "github.com/wyfcoding/executioncore/internal/trigger/domain"
)

// SimulatedExecutor 实现触发引擎的执行协作方接口：
// 取最新行情，跑一次冲击模拟，把成交结果应用到生命周期管理器。
type SimulatedExecutor struct {
	lifecycle  *lifecycleapp.LifecycleManager
	simulator  *simdomain.MarketImpactSimulator
	marketData triggerdomain.MarketDataProvider
	logger     *slog.Logger
}

// NewSimulatedExecutor 构造函数。
func NewSimulatedExecutor(
	lifecycle *lifecycleapp.LifecycleManager,
	simulator *simdomain.MarketImpactSimulator,
	marketData triggerdomain.MarketDataProvider,
	logger *slog.Logger,
) *SimulatedExecutor {
	return &SimulatedExecutor{
		lifecycle:  lifecycle,
		simulator:  simulator,
		marketData: marketData,
		logger:     logger.With("module", "simulated_executor"),
	}
}

// ExecuteOrder 执行一笔已转换的可执行订单。
// 任一环节失败都向上返回错误，由触发引擎保留条件等待重试。
func (e *SimulatedExecutor) ExecuteOrder(ctx context.Context, order *orderdomain.Order) error {
	quote, err := e.marketData.GetQuote(ctx, order.Symbol)
	if err != nil {
		return fmt.Errorf("get quote for %s: %w", order.Symbol, err)
	}

	condition := e.simulator.GetMarketCondition(quote)
	result, err := e.simulator.SimulateExecution(order, quote, condition, quote.Volume)
	if err != nil {
		return fmt.Errorf("simulate execution for %s: %w", order.OrderID, err)
	}

	// 条件单触发后先迁移到 TRIGGERED，再回填成交
	if state, ok := e.lifecycle.GetOrderState(order.OrderID); ok &&
		state.Status == orderdomain.OrderStatusPending {
		if err := e.lifecycle.TriggerOrder(ctx, order.OrderID,
			fmt.Sprintf("executed at %s", result.FillPrice)); err != nil {
			return fmt.Errorf("mark order %s triggered: %w", order.OrderID, err)
		}
	}

	if err := e.lifecycle.UpdateFillDetails(ctx, order.OrderID,
		result.FilledQuantity, result.FillPrice, result.Commission); err != nil {
		return fmt.Errorf("apply fill for %s: %w", order.OrderID, err)
	}

	e.logger.InfoContext(ctx, "order executed",
		"order_id", order.OrderID,
		"symbol", order.Symbol,
		"filled", result.FilledQuantity,
		"price", result.FillPrice,
		"partial", result.PartialFill,
		"condition", condition,
	)
	return nil
}
