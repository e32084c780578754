package bookingRepo

import (
	"context"

	"swiftaid/models"
)

// BookingRepository defines the interface for booking data access.
//
// ApplyTransition is the load-bearing method: it persists a status change
// only if the stored status still equals expected (a per-document
// compare-and-swap), returning repository.ErrConflict otherwise.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	ApplyTransition(ctx context.Context, booking *models.Booking, expected models.BookingStatus) error
	ListPending(ctx context.Context) ([]*models.Booking, error)
}
