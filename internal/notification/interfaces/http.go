// Package interfaces 通知接口层：规则管理、历史查询与 WebSocket 接入。
package interfaces

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wyfcoding/executioncore/internal/notification/application"
	"github.com/wyfcoding/executioncore/internal/notification/domain"
	"github.com/wyfcoding/executioncore/internal/notification/infrastructure/sender"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 推送通道，来源校验交给网关
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	dispatcher *application.NotificationDispatcher
	hub        *sender.WebSocketHub
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(dispatcher *application.NotificationDispatcher, hub *sender.WebSocketHub) *HTTPHandler {
	return &HTTPHandler{dispatcher: dispatcher, hub: hub}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.GetHistory)
		notifications.POST("/rules", h.AddRule)
		notifications.DELETE("/rules/:id", h.RemoveRule)
		notifications.GET("/ws", h.ServeWebSocket)
	}
}

// GetHistory 最近的通知记录
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, h.dispatcher.GetHistory(limit))
}

// AddRule 注册通知规则
func (h *HTTPHandler) AddRule(c *gin.Context) {
	var rule domain.NotificationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rule.RuleID == "" || len(rule.Events) == 0 || len(rule.Channels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule_id, events and channels are required"})
		return
	}
	h.dispatcher.AddRule(&rule)
	c.JSON(http.StatusCreated, gin.H{"rule_id": rule.RuleID})
}

// RemoveRule 移除通知规则
func (h *HTTPHandler) RemoveRule(c *gin.Context) {
	if !h.dispatcher.RemoveRule(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// ServeWebSocket 升级连接并纳入广播中心
func (h *HTTPHandler) ServeWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.hub.AddClient(conn)

	// 读循环只用于感知断开
	go func() {
		defer h.hub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
