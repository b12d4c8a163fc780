// Package mysql 提供了通知仓储接口的 MySQL GORM 实现。
package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/executioncore/internal/notification/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationModel 通知数据库模型
type NotificationModel struct {
	gorm.Model
	NotificationID string     `gorm:"column:notification_id;type:varchar(64);uniqueIndex;not null"`
	RuleID         string     `gorm:"column:rule_id;type:varchar(64);index;not null"`
	Event          string     `gorm:"column:event;type:varchar(32);not null"`
	OrderID        string     `gorm:"column:order_id;type:varchar(64);index;not null"`
	Title          string     `gorm:"column:title;type:varchar(128)"`
	Message        string     `gorm:"column:message;type:text"`
	Priority       string     `gorm:"column:priority;type:varchar(16);not null"`
	Channels       string     `gorm:"column:channels;type:varchar(255)"`
	Data           string     `gorm:"column:data;type:text"`
	FailedChannels string     `gorm:"column:failed_channels;type:varchar(255)"`
	RetryCount     int        `gorm:"column:retry_count;not null;default:0"`
	MaxRetries     int        `gorm:"column:max_retries;not null;default:0"`
	SentAt         *time.Time `gorm:"column:sent_at;type:datetime"`
	EmittedAt      time.Time  `gorm:"column:emitted_at;type:datetime;not null"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "order_notifications"
}

// notificationRepositoryImpl 是 domain.NotificationRepository 接口的 GORM 实现。
type notificationRepositoryImpl struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储实例
func NewNotificationRepository(db *gorm.DB) domain.NotificationRepository {
	return &notificationRepositoryImpl{db: db}
}

// Save 实现 domain.NotificationRepository.Save
func (r *notificationRepositoryImpl) Save(ctx context.Context, n *domain.Notification) error {
	channels, _ := json.Marshal(n.Channels)
	failed, _ := json.Marshal(n.FailedChannels)
	data, _ := json.Marshal(n.Data)

	m := &NotificationModel{
		NotificationID: n.NotificationID,
		RuleID:         n.RuleID,
		Event:          string(n.Event),
		OrderID:        n.OrderID,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       string(n.Priority),
		Channels:       string(channels),
		Data:           string(data),
		FailedChannels: string(failed),
		RetryCount:     n.RetryCount,
		MaxRetries:     n.MaxRetries,
		SentAt:         n.SentAt,
		EmittedAt:      n.CreatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "notification_id"}},
		UpdateAll: true,
	}).Create(m).Error
	if err != nil {
		logging.Error(ctx, "notification_repository.Save failed",
			"notification_id", n.NotificationID, "error", err)
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}
