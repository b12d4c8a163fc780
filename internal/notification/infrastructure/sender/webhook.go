package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wyfcoding/executioncore/internal/notification/domain"
)

// WebhookSender 将通知以 JSON POST 到配置的回调地址。
// 非 2xx 或网络错误均视为投递失败。
type WebhookSender struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

// NewWebhookSender 创建 webhook 发送器，timeout<=0 时取 10s。
func NewWebhookSender(url string, timeout time.Duration, logger *slog.Logger) domain.Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		url:    url,
		logger: logger.With("module", "webhook_sender"),
	}
}

// Send 发起 HTTP POST。
func (s *WebhookSender) Send(ctx context.Context, n *domain.Notification) error {
	payload := map[string]any{
		"notification_id": n.NotificationID,
		"event":           string(n.Event),
		"order_id":        n.OrderID,
		"title":           n.Title,
		"message":         n.Message,
		"priority":        string(n.Priority),
		"data":            n.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	s.logger.DebugContext(ctx, "webhook delivered",
		"notification_id", n.NotificationID, "status", resp.StatusCode)
	return nil
}
