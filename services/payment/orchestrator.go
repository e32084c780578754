package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	paymentRepo "swiftaid/database/repository/payment"
	"swiftaid/models"
	"swiftaid/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator ties money movement to booking transitions. Every operation is
// idempotent against its own terminal state: repeating a capture or refund
// that already happened is a no-op success.
type Orchestrator interface {
	Authorize(ctx context.Context, bookingID string, amount float64) (*models.Payment, error)
	Capture(ctx context.Context, paymentID string, amount float64) error
	Refund(ctx context.Context, paymentID string) error
}

// DefaultOrchestrator implements Orchestrator against a persisted payment
// record and an external gateway.
type DefaultOrchestrator struct {
	Repo           paymentRepo.PaymentRepository
	Gateway        Gateway
	Currency       string
	MaxAttempts    int
	RetryBase      time.Duration
	GatewayTimeout time.Duration
	Logger         *zap.Logger

	locks *utils.KeyedMutex
}

// NewOrchestrator wires a payment orchestrator with bounded gateway retries
// and a per-attempt gateway timeout.
func NewOrchestrator(repo paymentRepo.PaymentRepository, gw Gateway, currency string, maxAttempts int, retryBase, gatewayTimeout time.Duration, logger *zap.Logger) *DefaultOrchestrator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &DefaultOrchestrator{
		Repo:           repo,
		Gateway:        gw,
		Currency:       currency,
		MaxAttempts:    maxAttempts,
		RetryBase:      retryBase,
		GatewayTimeout: gatewayTimeout,
		Logger:         logger,
		locks:          utils.NewKeyedMutex(),
	}
}

// Authorize places a hold for the given amount and records the payment in
// the authorized state. Declines are not retried; the caller decides.
func (o *DefaultOrchestrator) Authorize(ctx context.Context, bookingID string, amount float64) (*models.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid authorization amount %.2f", amount)
	}

	key := "auth:" + bookingID
	ref, err := o.callGateway(ctx, key, func(ctx context.Context) (string, error) {
		return o.Gateway.Authorize(ctx, key, toCents(amount), o.Currency)
	})
	if err != nil {
		if errors.Is(err, errGatewayDeclined) {
			o.Logger.Warn("authorization declined",
				zap.String("bookingId", bookingID), zap.Float64("amount", amount))
			return nil, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
		}
		return nil, err
	}

	now := time.Now()
	p := &models.Payment{
		ID:         uuid.New().String(),
		BookingID:  bookingID,
		Amount:     amount,
		Currency:   o.Currency,
		State:      models.PaymentAuthorized,
		GatewayRef: ref,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record authorization: %w", err)
	}

	o.Logger.Info("payment authorized",
		zap.String("paymentId", p.ID),
		zap.String("bookingId", bookingID),
		zap.Float64("amount", amount))
	return p, nil
}

// Capture settles the given amount for an authorized payment. The hold can
// cover at most the amount originally authorized; anything above it is moved
// as a separate balance charge under its own idempotency key, so completing a
// deposit-held booking settles deposit plus balance. Capturing an
// already-captured payment is a no-op success.
func (o *DefaultOrchestrator) Capture(ctx context.Context, paymentID string, amount float64) error {
	o.locks.Lock(paymentID)
	defer o.locks.Unlock(paymentID)

	p, err := o.load(ctx, paymentID)
	if err != nil {
		return err
	}

	switch p.State {
	case models.PaymentCaptured:
		return nil // idempotent no-op
	case models.PaymentAuthorized:
		// proceed
	default:
		return fmt.Errorf("cannot capture payment %s in state %s", paymentID, p.State)
	}

	holdAmount := amount
	var balance float64
	if holdAmount > p.Amount {
		balance = holdAmount - p.Amount
		holdAmount = p.Amount
	}

	key := "capture:" + paymentID
	_, err = o.callGateway(ctx, key, func(ctx context.Context) (string, error) {
		return "", o.Gateway.Capture(ctx, key, p.GatewayRef, toCents(holdAmount))
	})
	if err != nil {
		return o.failPayment(ctx, p, err)
	}

	if balance > 0 {
		// Stable key: a retried settlement replays the same charge at the
		// gateway instead of double-billing the balance.
		balanceKey := "balance:" + paymentID
		_, err = o.callGateway(ctx, balanceKey, func(ctx context.Context) (string, error) {
			return o.Gateway.Charge(ctx, balanceKey, toCents(balance), o.Currency)
		})
		if err != nil {
			return o.failPayment(ctx, p, err)
		}
	}

	if err := o.Repo.UpdateState(ctx, paymentID, models.PaymentAuthorized, models.PaymentCaptured, amount); err != nil {
		return o.reconcileState(ctx, paymentID, models.PaymentCaptured, err)
	}

	o.Logger.Info("payment captured",
		zap.String("paymentId", paymentID),
		zap.Float64("amount", amount),
		zap.Float64("balanceCharged", balance))
	return nil
}

// Refund releases an authorized hold or reverses a captured charge.
// Refunding an already-refunded payment is a no-op success.
func (o *DefaultOrchestrator) Refund(ctx context.Context, paymentID string) error {
	o.locks.Lock(paymentID)
	defer o.locks.Unlock(paymentID)

	p, err := o.load(ctx, paymentID)
	if err != nil {
		return err
	}

	switch p.State {
	case models.PaymentRefunded:
		return nil // idempotent no-op
	case models.PaymentAuthorized, models.PaymentCaptured:
		// proceed
	default:
		return fmt.Errorf("cannot refund payment %s in state %s", paymentID, p.State)
	}

	key := "refund:" + paymentID
	_, err = o.callGateway(ctx, key, func(ctx context.Context) (string, error) {
		return "", o.Gateway.Refund(ctx, key, p.GatewayRef)
	})
	if err != nil {
		return o.failPayment(ctx, p, err)
	}

	if err := o.Repo.UpdateState(ctx, paymentID, p.State, models.PaymentRefunded, p.CapturedAmount); err != nil {
		return o.reconcileState(ctx, paymentID, models.PaymentRefunded, err)
	}

	o.Logger.Info("payment refunded", zap.String("paymentId", paymentID))
	return nil
}

func (o *DefaultOrchestrator) load(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := o.Repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	return p, nil
}

// failPayment maps a gateway error after the decline/transient split. A
// permanent rejection moves the payment to failed and surfaces as
// ErrPaymentDeclined; a transient exhaustion leaves the payment in place so
// the operation can be retried later.
func (o *DefaultOrchestrator) failPayment(ctx context.Context, p *models.Payment, gwErr error) error {
	if !errors.Is(gwErr, errGatewayDeclined) {
		return gwErr
	}
	if err := o.Repo.UpdateState(ctx, p.ID, p.State, models.PaymentFailed, p.CapturedAmount); err != nil {
		o.Logger.Error("failed to mark payment failed",
			zap.String("paymentId", p.ID), zap.Error(err))
	}
	o.Logger.Warn("payment operation declined",
		zap.String("paymentId", p.ID), zap.Error(gwErr))
	return fmt.Errorf("%w: %v", ErrPaymentDeclined, gwErr)
}

// reconcileState handles a CAS miss on the payment record: if another caller
// already landed the same transition, treat the operation as done.
func (o *DefaultOrchestrator) reconcileState(ctx context.Context, paymentID string, want models.PaymentState, updateErr error) error {
	p, err := o.Repo.GetByID(ctx, paymentID)
	if err == nil && p.State == want {
		return nil
	}
	return fmt.Errorf("failed to persist payment state %s for %s: %w", want, paymentID, updateErr)
}

// callGateway runs a gateway call with bounded exponential backoff. Declines
// abort immediately; only transient failures are retried, and exhaustion
// surfaces as ErrPaymentOperationFailed.
func (o *DefaultOrchestrator) callGateway(ctx context.Context, key string, fn func(ctx context.Context) (string, error)) (string, error) {
	callOnce := func() (string, error) {
		if o.GatewayTimeout <= 0 {
			return fn(ctx)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, o.GatewayTimeout)
		defer cancel()
		return fn(attemptCtx)
	}

	var lastErr error
	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		ref, err := callOnce()
		if err == nil {
			return ref, nil
		}
		if errors.Is(err, errGatewayDeclined) {
			return "", err
		}
		lastErr = err

		o.Logger.Warn("gateway call failed",
			zap.String("idempotencyKey", key),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == o.MaxAttempts {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * o.RetryBase
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrPaymentOperationFailed, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: %v", ErrPaymentOperationFailed, lastErr)
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
