package payment

import "errors"

var (
	// ErrPaymentDeclined means the gateway rejected the charge outright.
	// Hard stop: the caller decides, nothing is retried.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrPaymentOperationFailed means a transient gateway failure survived
	// every retry. The booking transition that triggered the operation must
	// be compensated by the caller.
	ErrPaymentOperationFailed = errors.New("payment operation failed")

	// ErrPaymentNotFound means the referenced payment record does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// errGatewayDeclined is the gateway adapter's signal for a permanent
	// rejection, mapped to ErrPaymentDeclined by the orchestrator.
	errGatewayDeclined = errors.New("gateway declined")
)
