package service

import "errors"

var (
	ErrEmptyOrder         = errors.New("order has no items")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrAmountMismatch     = errors.New("order amount does not match catalog prices")
	ErrInvalidStatus      = errors.New("unknown order status")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrPaymentRequired    = errors.New("order must be paid before it can be fulfilled")
	ErrPaymentNotSettled  = errors.New("payment has not been completed")
	ErrInvalidToken       = errors.New("invalid confirmation token")
	ErrNotAwaitingPayment = errors.New("order is not awaiting online payment")
)
