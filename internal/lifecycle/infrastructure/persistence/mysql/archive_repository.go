// Package mysql 提供了终态订单归档仓储的 MySQL GORM 实现。
package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArchivedOrderModel 终态订单归档模型
type ArchivedOrderModel struct {
	gorm.Model
	OrderID          string    `gorm:"column:order_id;type:varchar(64);uniqueIndex;not null"`
	Symbol           string    `gorm:"column:symbol;type:varchar(32);index;not null"`
	Status           string    `gorm:"column:status;type:varchar(20);index;not null"`
	Quantity         string    `gorm:"column:quantity;type:decimal(20,8);not null"`
	FilledQuantity   string    `gorm:"column:filled_quantity;type:decimal(20,8);not null"`
	AverageFillPrice string    `gorm:"column:average_fill_price;type:decimal(20,8);not null"`
	TotalCommission  string    `gorm:"column:total_commission;type:decimal(20,8);not null"`
	Transitions      string    `gorm:"column:transitions;type:text"`
	ErrorMessages    string    `gorm:"column:error_messages;type:text"`
	OrderCreatedAt   time.Time `gorm:"column:order_created_at;type:datetime;not null"`
	CompletedAt      time.Time `gorm:"column:completed_at;type:datetime;not null"`
}

// TableName 指定表名
func (ArchivedOrderModel) TableName() string {
	return "archived_orders"
}

// archiveRepositoryImpl 是 domain.ArchiveRepository 接口的 GORM 实现。
type archiveRepositoryImpl struct {
	db *gorm.DB
}

// NewArchiveRepository 创建归档仓储实例
func NewArchiveRepository(db *gorm.DB) domain.ArchiveRepository {
	return &archiveRepositoryImpl{db: db}
}

// Save 实现 domain.ArchiveRepository.Save
func (r *archiveRepositoryImpl) Save(ctx context.Context, state *domain.OrderLifecycleState) error {
	transitions, _ := json.Marshal(state.Transitions)
	errMsgs, _ := json.Marshal(state.ErrorMessages)

	m := &ArchivedOrderModel{
		OrderID:          state.Order.OrderID,
		Symbol:           state.Order.Symbol,
		Status:           string(state.Status),
		Quantity:         state.Order.Quantity.String(),
		FilledQuantity:   state.FilledQuantity.String(),
		AverageFillPrice: state.AverageFillPrice.String(),
		TotalCommission:  state.TotalCommission.String(),
		Transitions:      string(transitions),
		ErrorMessages:    string(errMsgs),
		OrderCreatedAt:   state.CreatedAt,
		CompletedAt:      state.UpdatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(m).Error
	if err != nil {
		logging.Error(ctx, "archive_repository.Save failed",
			"order_id", state.Order.OrderID, "error", err)
		return fmt.Errorf("archive order: %w", err)
	}
	return nil
}
