package models

import "time"

// PaymentState tracks money movement independently of booking status. The two
// can legitimately diverge during failure windows; reconciliation happens in
// the payment orchestrator, never by rewinding a terminal payment state.
type PaymentState string

const (
	PaymentAuthorized PaymentState = "authorized"
	PaymentCaptured   PaymentState = "captured"
	PaymentRefunded   PaymentState = "refunded"
	PaymentFailed     PaymentState = "failed"
)

// IsTerminal returns true once the payment can no longer move. No state
// re-enters authorized.
func (s PaymentState) IsTerminal() bool {
	return s == PaymentCaptured || s == PaymentRefunded || s == PaymentFailed
}

// Payment represents a hold placed against a booking and its eventual
// settlement.
type Payment struct {
	ID        string       `bson:"id" json:"id"`
	BookingID string       `bson:"bookingId" json:"bookingId"`
	Amount    float64      `bson:"amount" json:"amount"`
	Currency  string       `bson:"currency" json:"currency"`
	State     PaymentState `bson:"state" json:"state"`

	// CapturedAmount is the total moved by capture; zero while authorized.
	CapturedAmount float64 `bson:"capturedAmount" json:"capturedAmount"`

	// GatewayRef is the payment gateway's identifier for the underlying hold.
	GatewayRef string `bson:"gatewayRef,omitempty" json:"gatewayRef,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
