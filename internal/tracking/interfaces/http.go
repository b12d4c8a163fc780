// Package interfaces 状态追踪接口层
package interfaces

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	"github.com/wyfcoding/executioncore/internal/tracking/application"
)

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	tracker *application.StateTracker
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(tracker *application.StateTracker) *HTTPHandler {
	return &HTTPHandler{tracker: tracker}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	tracking := r.Group("/tracking")
	{
		tracking.GET("/orders/:id", h.GetCurrentState)
		tracking.GET("/orders/:id/history", h.GetHistory)
		tracking.GET("/orders/:id/transitions", h.GetTransitions)
		tracking.GET("/events", h.GetRecentEvents)
		tracking.GET("/fill-rate/:symbol", h.GetFillRate)
	}
}

// GetCurrentState 某订单的最新快照
func (h *HTTPHandler) GetCurrentState(c *gin.Context) {
	snapshot, ok := h.tracker.GetCurrentState(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not tracked"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetHistory 某订单的快照历史
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	history := h.tracker.GetHistory(c.Param("id"), limit)
	if history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not tracked"})
		return
	}
	c.JSON(http.StatusOK, history)
}

// GetTransitions 某订单相邻去重后的状态序列
func (h *HTTPHandler) GetTransitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"order_id":    c.Param("id"),
		"transitions": h.tracker.GetTransitions(c.Param("id")),
	})
}

// GetRecentEvents 时间窗口内的快照
func (h *HTTPHandler) GetRecentEvents(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "5"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid minutes"})
		return
	}
	c.JSON(http.StatusOK, h.tracker.GetRecentEvents(time.Duration(minutes)*time.Minute))
}

// GetFillRate 窗口内某标的的成交率
func (h *HTTPHandler) GetFillRate(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "60"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid minutes"})
		return
	}
	symbol := c.Param("symbol")
	rate := h.tracker.GetFillRateBySymbol(symbol, time.Duration(minutes)*time.Minute)
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"fill_rate": rate,
		"filled":    h.tracker.GetOrdersByStatus(orderdomain.OrderStatusFilled),
	})
}
