package domain

import (
	"errors"
	"fmt"
)

// 转换失败原因
var (
	ErrUnsupportedOrderType = errors.New("order type not eligible for conversion")
	ErrMissingStopPrice     = errors.New("stop price not set")
	ErrMissingLimitPrice    = errors.New("limit price not set")
	ErrInvalidTrailConfig   = errors.New("exactly one of trail percent or trail amount must be set")
	ErrTriggerNotMet        = errors.New("trigger condition not met")
)

// ConversionError 订单转换错误，携带订单 ID 与具体原因。
type ConversionError struct {
	OrderID string
	Err     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("order %s: conversion failed: %v", e.OrderID, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func newConversionError(orderID string, err error) error {
	return &ConversionError{OrderID: orderID, Err: err}
}
