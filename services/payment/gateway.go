package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
)

// Gateway abstracts the payment processor. Every call carries a stable
// idempotency key so a retried request cannot move money twice; the
// orchestrator owns key construction.
type Gateway interface {
	Authorize(ctx context.Context, idempotencyKey string, amountCents int64, currency string) (string, error)
	Capture(ctx context.Context, idempotencyKey, gatewayRef string, amountCents int64) error
	// Charge moves money immediately, outside any hold. Used to settle the
	// balance above a deposit hold: a capture can never exceed the amount
	// originally authorized.
	Charge(ctx context.Context, idempotencyKey string, amountCents int64, currency string) (string, error)
	Refund(ctx context.Context, idempotencyKey, gatewayRef string) error
}

// StripeGateway implements Gateway on Stripe PaymentIntents with manual
// capture, so an authorization is a hold until captured or cancelled.
type StripeGateway struct{}

// NewStripeGateway returns a gateway using the globally configured stripe key.
func NewStripeGateway() *StripeGateway {
	return &StripeGateway{}
}

func (g *StripeGateway) Authorize(ctx context.Context, idempotencyKey string, amountCents int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return pi.ID, nil
}

func (g *StripeGateway) Capture(ctx context.Context, idempotencyKey, gatewayRef string, amountCents int64) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amountCents),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := paymentintent.Capture(gatewayRef, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) Charge(ctx context.Context, idempotencyKey string, amountCents int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		Confirm:  stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return pi.ID, nil
}

func (g *StripeGateway) Refund(ctx context.Context, idempotencyKey, gatewayRef string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayRef),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := refund.New(params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// mapStripeError separates permanent rejections from transient failures so
// the orchestrator knows what is worth retrying.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return fmt.Errorf("%w: %s", errGatewayDeclined, stripeErr.Msg)
		}
	}
	return err
}
