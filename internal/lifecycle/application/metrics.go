package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wyfcoding/pkg/metrics"
)

// orderMetrics 订单业务指标，注册到服务统一指标仓库。
type orderMetrics struct {
	ordersTotal  *prometheus.CounterVec
	ordersActive prometheus.Gauge
	tradesTotal  *prometheus.CounterVec
}

// newOrderMetrics m 为 nil 时返回 nil，所有记录方法对 nil 接收者安全。
func newOrderMetrics(m *metrics.Metrics) *orderMetrics {
	if m == nil {
		return nil
	}
	return &orderMetrics{
		ordersTotal: m.NewCounterVec(&prometheus.CounterOpts{
			Name: "trading_orders_total",
			Help: "Total number of orders created",
		}, []string{"type"}),
		ordersActive: m.NewGaugeVec(&prometheus.GaugeOpts{
			Name: "trading_orders_active",
			Help: "Number of active orders",
		}, nil).WithLabelValues(),
		tradesTotal: m.NewCounterVec(&prometheus.CounterOpts{
			Name: "trading_trades_total",
			Help: "Total number of executed trades",
		}, []string{"symbol"}),
	}
}

func (om *orderMetrics) orderCreated(orderType string) {
	if om == nil {
		return
	}
	om.ordersTotal.WithLabelValues(orderType).Inc()
	om.ordersActive.Inc()
}

func (om *orderMetrics) orderClosed() {
	if om == nil {
		return
	}
	om.ordersActive.Dec()
}

func (om *orderMetrics) tradeExecuted(symbol string) {
	if om == nil {
		return
	}
	om.tradesTotal.WithLabelValues(symbol).Inc()
}
