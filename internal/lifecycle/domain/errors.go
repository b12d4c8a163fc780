package domain

import (
	"errors"
	"fmt"
)

// 生命周期错误原因
var (
	ErrOrderIDMissing    = errors.New("order id is required")
	ErrDuplicateOrder    = errors.New("order already tracked")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrOverfill          = errors.New("fill exceeds remaining quantity")
	ErrInvalidFill       = errors.New("fill quantity must be positive")
)

// LifecycleError 生命周期管理错误，携带订单 ID 与原因。
type LifecycleError struct {
	OrderID string
	Err     error
	Detail  string
}

func (e *LifecycleError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("order %s: %v: %s", e.OrderID, e.Err, e.Detail)
	}
	return fmt.Sprintf("order %s: %v", e.OrderID, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// NewLifecycleError 构造函数。
func NewLifecycleError(orderID string, err error, detail string) error {
	return &LifecycleError{OrderID: orderID, Err: err, Detail: detail}
}
