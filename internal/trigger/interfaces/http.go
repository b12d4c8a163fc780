// Package interfaces 条件触发接口层
package interfaces

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	lifecycleapp "github.com/wyfcoding/executioncore/internal/lifecycle/application"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	"github.com/wyfcoding/executioncore/internal/trigger/application"
)

// QuoteSink 行情写入端，由行情源实现。
type QuoteSink interface {
	SetQuote(symbol string, last, bid, ask, volume decimal.Decimal)
}

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	engine    *application.TriggerEngine
	lifecycle *lifecycleapp.LifecycleManager
	quotes    QuoteSink
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(engine *application.TriggerEngine, lifecycle *lifecycleapp.LifecycleManager, quotes QuoteSink) *HTTPHandler {
	return &HTTPHandler{engine: engine, lifecycle: lifecycle, quotes: quotes}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	trigger := r.Group("/trigger")
	{
		trigger.POST("/orders", h.RegisterTriggerOrder)
		trigger.DELETE("/orders/:id", h.RemoveTriggerOrder)
		trigger.GET("/conditions/:symbol", h.GetConditions)
		trigger.POST("/quotes", h.HandleQuote)
	}
}

// TriggerOrderRequest 条件单注册请求
type TriggerOrderRequest struct {
	OrderID      string `json:"order_id" binding:"required"`
	Symbol       string `json:"symbol" binding:"required"`
	Quantity     string `json:"quantity" binding:"required"`
	Type         string `json:"type" binding:"required"`
	Price        string `json:"price"`
	StopPrice    string `json:"stop_price"`
	TrailPercent string `json:"trail_percent"`
	TrailAmount  string `json:"trail_amount"`
}

func (r *TriggerOrderRequest) toOrder() (*orderdomain.Order, error) {
	quantity, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return nil, errors.New("invalid quantity")
	}
	order := &orderdomain.Order{
		OrderID:  r.OrderID,
		Symbol:   r.Symbol,
		Quantity: quantity,
		Type:     orderdomain.OrderType(r.Type),
		Status:   orderdomain.OrderStatusPending,
	}
	for _, f := range []struct {
		raw  string
		dest **decimal.Decimal
	}{
		{r.Price, &order.Price},
		{r.StopPrice, &order.StopPrice},
		{r.TrailPercent, &order.TrailPercent},
		{r.TrailAmount, &order.TrailAmount},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, errors.New("invalid decimal field")
		}
		*f.dest = &d
	}
	return order, nil
}

// RegisterTriggerOrder 创建生命周期订单并注册触发条件
func (h *HTTPHandler) RegisterTriggerOrder(c *gin.Context) {
	var req TriggerOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := req.toOrder()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.lifecycle.CreateOrder(ctx, order); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.AddTriggerOrder(ctx, order); err != nil {
		// 条件注册失败则回滚生命周期订单
		_ = h.lifecycle.RejectOrder(ctx, order.OrderID, err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": order.OrderID})
}

// RemoveTriggerOrder 撤销触发条件
func (h *HTTPHandler) RemoveTriggerOrder(c *gin.Context) {
	if !h.engine.RemoveTriggerOrder(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "condition not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// GetConditions 查询某标的的活跃触发条件
func (h *HTTPHandler) GetConditions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetConditions(c.Param("symbol")))
}

// QuoteRequest 行情推送请求
type QuoteRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Price  string `json:"price" binding:"required"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Volume string `json:"volume"`
}

// HandleQuote 行情更新入口：写入行情源并同步评估触发条件
func (h *HTTPHandler) HandleQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	if h.quotes != nil {
		bid, _ := decimal.NewFromString(req.Bid)
		ask, _ := decimal.NewFromString(req.Ask)
		volume, _ := decimal.NewFromString(req.Volume)
		h.quotes.SetQuote(req.Symbol, price, bid, ask, volume)
	}
	if err := h.engine.CheckTriggerConditions(c.Request.Context(), req.Symbol, price); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}
