// Package application 通知分发器：规则匹配、排队与后台多渠道投递。
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	"github.com/wyfcoding/executioncore/internal/notification/domain"
)

// Config 分发器容量参数
type Config struct {
	// QueueSize 投递队列容量
	QueueSize int
	// HistoryLimit 历史记录上限，超出丢弃最旧
	HistoryLimit int
	// MaxRetries 通知重试上限（计数用，不做自动重试）
	MaxRetries int
}

// DefaultConfig 默认参数。
func DefaultConfig() Config {
	return Config{QueueSize: 256, HistoryLimit: 1000, MaxRetries: 3}
}

// NotificationDispatcher 持有规则与渠道发送器，FIFO 投递队列由单个后台 worker 消费。
type NotificationDispatcher struct {
	mu      sync.Mutex
	cfg     Config
	rules   map[string]*domain.NotificationRule
	senders map[domain.Channel]domain.Sender
	history []*domain.Notification
	repo    domain.NotificationRepository
	logger  *slog.Logger

	queue   chan *domain.Notification
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewNotificationDispatcher 构造函数。repo 可为 nil（不落库）。
func NewNotificationDispatcher(cfg Config, repo domain.NotificationRepository, logger *slog.Logger) *NotificationDispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 1000
	}
	return &NotificationDispatcher{
		cfg:     cfg,
		rules:   make(map[string]*domain.NotificationRule),
		senders: make(map[domain.Channel]domain.Sender),
		repo:    repo,
		logger:  logger.With("module", "notification_dispatcher"),
		queue:   make(chan *domain.Notification, cfg.QueueSize),
	}
}

// AddRule 注册或覆盖规则。
func (d *NotificationDispatcher) AddRule(rule *domain.NotificationRule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules[rule.RuleID] = rule
}

// RemoveRule 移除规则。
func (d *NotificationDispatcher) RemoveRule(ruleID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rules[ruleID]; !ok {
		return false
	}
	delete(d.rules, ruleID)
	return true
}

// RegisterSender 注册渠道发送器。
func (d *NotificationDispatcher) RegisterSender(ch domain.Channel, sender domain.Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[ch] = sender
}

// HandleOrderEvent 按规则匹配生命周期事件，每条命中规则生成一条通知入队。
// 返回入队数量；队列已满时丢弃并告警。
func (d *NotificationDispatcher) HandleOrderEvent(ctx context.Context, state *lifecycledomain.OrderLifecycleState, event lifecycledomain.Event) int {
	d.mu.Lock()
	var matched []*domain.NotificationRule
	for _, rule := range d.rules {
		if rule.AppliesTo(event, state) {
			matched = append(matched, rule)
		}
	}
	d.mu.Unlock()

	enqueued := 0
	for _, rule := range matched {
		title, message := renderContent(event, state)
		n := &domain.Notification{
			NotificationID: uuid.NewString(),
			RuleID:         rule.RuleID,
			Event:          event,
			OrderID:        state.Order.OrderID,
			Title:          title,
			Message:        message,
			Priority:       rule.Priority,
			Channels:       append([]domain.Channel(nil), rule.Channels...),
			Data: map[string]any{
				"symbol":          state.Order.Symbol,
				"status":          string(state.Status),
				"filled_quantity": state.FilledQuantity.String(),
			},
			CreatedAt:  time.Now(),
			MaxRetries: d.cfg.MaxRetries,
		}
		select {
		case d.queue <- n:
			enqueued++
		default:
			d.logger.WarnContext(ctx, "notification queue full, dropped",
				"rule_id", rule.RuleID, "order_id", n.OrderID, "event", event)
		}
	}
	return enqueued
}

// GetHistory 最近的通知记录（从新到旧），limit<=0 表示不限。
func (d *NotificationDispatcher) GetHistory(limit int) []*domain.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.Notification, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		dup := *d.history[i]
		out = append(out, &dup)
	}
	return out
}

// QueueDepth 当前待投递数量。
func (d *NotificationDispatcher) QueueDepth() int {
	return len(d.queue)
}

// Start 启动后台投递 worker。
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go d.deliveryLoop(workerCtx)
}

// Stop 取消 worker 并等待退出，丢弃队列中未投递的通知并记录数量。
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	discarded := 0
	for {
		select {
		case <-d.queue:
			discarded++
		default:
			if discarded > 0 {
				d.logger.Warn("undelivered notifications discarded on stop", "count", discarded)
			}
			return
		}
	}
}

func (d *NotificationDispatcher) deliveryLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

// deliver 渠道间相互独立：单渠道失败只记入 failed_channels，不影响其余渠道。
func (d *NotificationDispatcher) deliver(ctx context.Context, n *domain.Notification) {
	succeeded := 0
	for _, ch := range n.Channels {
		d.mu.Lock()
		sender, ok := d.senders[ch]
		d.mu.Unlock()
		if !ok {
			n.MarkChannelFailed(ch)
			d.logger.WarnContext(ctx, "no sender registered for channel",
				"channel", ch, "notification_id", n.NotificationID)
			continue
		}
		if err := d.sendSafely(ctx, sender, n); err != nil {
			n.MarkChannelFailed(ch)
			d.logger.ErrorContext(ctx, "notification delivery failed",
				"channel", ch, "notification_id", n.NotificationID, "error", err)
			continue
		}
		succeeded++
	}
	if succeeded > 0 {
		now := time.Now()
		n.SentAt = &now
	}

	d.mu.Lock()
	d.history = append(d.history, n)
	if len(d.history) > d.cfg.HistoryLimit {
		d.history = d.history[len(d.history)-d.cfg.HistoryLimit:]
	}
	d.mu.Unlock()

	if d.repo != nil {
		if err := d.repo.Save(ctx, n); err != nil {
			d.logger.ErrorContext(ctx, "notification persist failed",
				"notification_id", n.NotificationID, "error", err)
		}
	}
}

// sendSafely 发送器 panic 等同于失败，不会击穿投递循环。
func (d *NotificationDispatcher) sendSafely(ctx context.Context, sender domain.Sender, n *domain.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return sender.Send(ctx, n)
}

// renderContent 按事件渲染标题与正文，未知事件走通用文案。
func renderContent(event lifecycledomain.Event, state *lifecycledomain.OrderLifecycleState) (string, string) {
	id := state.Order.OrderID
	symbol := state.Order.Symbol
	switch event {
	case lifecycledomain.EventFilled:
		return "订单成交", fmt.Sprintf("订单 %s (%s) 全部成交，均价 %s", id, symbol, state.AverageFillPrice)
	case lifecycledomain.EventPartiallyFilled:
		return "订单部分成交", fmt.Sprintf("订单 %s (%s) 已成交 %s，剩余 %s", id, symbol, state.FilledQuantity, state.RemainingQuantity)
	case lifecycledomain.EventCancelled:
		return "订单已取消", fmt.Sprintf("订单 %s (%s) 已取消", id, symbol)
	case lifecycledomain.EventRejected:
		return "订单被拒绝", fmt.Sprintf("订单 %s (%s) 被拒绝: %s", id, symbol, lastError(state))
	case lifecycledomain.EventTriggered:
		return "条件单触发", fmt.Sprintf("订单 %s (%s) 触发条件已满足", id, symbol)
	case lifecycledomain.EventExpired:
		return "订单已过期", fmt.Sprintf("订单 %s (%s) 已过期", id, symbol)
	case lifecycledomain.EventError:
		return "订单异常", fmt.Sprintf("订单 %s (%s) 发生异常: %s", id, symbol, lastError(state))
	default:
		return "订单状态更新", fmt.Sprintf("订单 %s (%s) 状态变更为 %s", id, symbol, state.Status)
	}
}

func lastError(state *lifecycledomain.OrderLifecycleState) string {
	if len(state.ErrorMessages) == 0 {
		return "unknown"
	}
	return state.ErrorMessages[len(state.ErrorMessages)-1]
}
