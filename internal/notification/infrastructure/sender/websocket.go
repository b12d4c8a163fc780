package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/wyfcoding/executioncore/internal/notification/domain"
)

// broadcastEnvelope 推送给客户端的统一信封格式
type broadcastEnvelope struct {
	Type           string         `json:"type"`
	NotificationID string         `json:"notification_id"`
	Event          string         `json:"event"`
	OrderID        string         `json:"order_id"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Priority       string         `json:"priority"`
	Data           map[string]any `json:"data,omitempty"`
}

// WebSocketHub 管理已连接客户端并向全体广播通知。
// 写失败的客户端立即关闭并剔除。
type WebSocketHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *slog.Logger
}

// NewWebSocketHub 创建广播中心。
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger.With("module", "ws_hub"),
	}
}

// AddClient 纳管一个已升级的连接。
func (h *WebSocketHub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

// RemoveClient 移除并关闭连接。
func (h *WebSocketHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
}

// ClientCount 在线客户端数。
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send 向全部客户端广播；无客户端在线视为投递失败。
func (h *WebSocketHub) Send(ctx context.Context, n *domain.Notification) error {
	envelope := broadcastEnvelope{
		Type:           "order_notification",
		NotificationID: n.NotificationID,
		Event:          string(n.Event),
		OrderID:        n.OrderID,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       string(n.Priority),
		Data:           n.Data,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return errors.New("no websocket clients connected")
	}

	delivered := 0
	for conn := range h.clients {
		if err := conn.WriteJSON(envelope); err != nil {
			h.logger.WarnContext(ctx, "websocket write failed, pruning client", "error", err)
			delete(h.clients, conn)
			_ = conn.Close()
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.New("broadcast reached no clients")
	}
	return nil
}
