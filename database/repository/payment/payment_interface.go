package paymentRepo

import (
	"context"

	"swiftaid/models"
)

// PaymentRepository defines the interface for payment data access.
//
// UpdateState performs a compare-and-swap on the payment state so a payment
// cannot leave a terminal state and a transition cannot apply twice.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	UpdateState(ctx context.Context, id string, expected, next models.PaymentState, capturedAmount float64) error
}
