package booking

import (
	"context"
	"time"

	"swiftaid/models"
)

// BookingService is the single authority over the booking lifecycle. Every
// mutation of a booking goes through one of these operations; each is an
// atomic check-and-mutate with at most one payment side effect.
type BookingService interface {
	Create(ctx context.Context, req models.BookingRequest) (*models.Booking, error)
	Accept(ctx context.Context, bookingID, providerID string) (*models.Booking, error)
	Decline(ctx context.Context, bookingID string) (*models.Booking, error)
	Start(ctx context.Context, bookingID string) (*models.Booking, error)
	Complete(ctx context.Context, bookingID string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, actor string) (*models.Booking, error)
	// Expire is system-invoked only, by the deadline manager; the
	// presentation layer never calls it.
	Expire(ctx context.Context, bookingID string) (*models.Booking, error)
	GetByID(ctx context.Context, bookingID string) (*models.Booking, error)
}

// DeadlineWatcher is the slice of the deadline manager the state machine
// needs: register a watch when a booking enters pending, cancel it on the
// way out. Cancellation is best-effort-then-verified; the CAS transition is
// what actually decides races.
type DeadlineWatcher interface {
	Watch(bookingID string, deadline time.Time)
	Cancel(bookingID string)
}

// AlertDispatcher fans candidate alerts out for a fresh SOS booking. The
// delivery mechanics are external; failures are logged, never fatal to the
// booking.
type AlertDispatcher interface {
	DispatchSOSAlerts(ctx context.Context, b *models.Booking, candidates []models.ProviderCandidate) error
}
