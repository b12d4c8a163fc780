// Package interfaces 订单生命周期接口层
package interfaces

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/executioncore/internal/lifecycle/application"
	"github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
)

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	manager *application.LifecycleManager
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(manager *application.LifecycleManager) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.GetStatistics)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
	}
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	Symbol   string `json:"symbol" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
	Side     string `json:"side"`
	Type     string `json:"type" binding:"required"`
	Price    string `json:"price"`
}

// CreateOrder 创建订单
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
		return
	}
	order := &orderdomain.Order{
		OrderID:  req.OrderID,
		Symbol:   req.Symbol,
		Quantity: quantity,
		Side:     orderdomain.OrderSide(req.Side),
		Type:     orderdomain.OrderType(req.Type),
		Status:   orderdomain.OrderStatusPending,
	}
	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return
		}
		order.Price = &price
	}

	state, err := h.manager.CreateOrder(c.Request.Context(), order)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, state)
}

// GetOrder 查询订单生命周期状态
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	state, ok := h.manager.GetOrderState(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// CancelOrderRequest 取消订单请求
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder 取消订单
func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	err := h.manager.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancelled"})
}

// GetStatistics 按状态统计订单数量
func (h *HTTPHandler) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.GetStatistics())
}
