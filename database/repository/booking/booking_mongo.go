package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"swiftaid/database"
	"swiftaid/database/repository"
	"swiftaid/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const bookingsCollection = "bookings"

// MongoBookingRepo implements BookingRepository backed by MongoDB.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo returns a repository bound to the bookings collection.
func NewMongoBookingRepo() *MongoBookingRepo {
	return &MongoBookingRepo{coll: database.Collection(bookingsCollection)}
}

func (r *MongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to insert booking %s: %w", booking.ID, err)
	}
	return nil
}

func (r *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&booking)
	if err == mongo.ErrNoDocuments {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking %s: %w", id, err)
	}
	return &booking, nil
}

// ApplyTransition writes the booking's mutable fields, but only when the
// stored status still matches expected. The filter on the current status is
// what makes concurrent transitions resolve to exactly one winner even across
// processes.
func (r *MongoBookingRepo) ApplyTransition(ctx context.Context, booking *models.Booking, expected models.BookingStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"id": booking.ID, "status": expected}
	update := bson.M{
		"$set": bson.M{
			"status":           booking.Status,
			"providerId":       booking.ProviderID,
			"responseDeadline": booking.ResponseDeadline,
			"paymentRef":       booking.PaymentRef,
			"cancelledBy":      booking.CancelledBy,
			"statusChangedAt":  booking.StatusChangedAt,
		},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", booking.ID, err)
	}
	if res.MatchedCount == 0 {
		// Either the booking is gone or its status moved. Disambiguate so
		// callers can map the failure correctly.
		count, countErr := r.coll.CountDocuments(ctx, bson.M{"id": booking.ID})
		if countErr == nil && count == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}
	return nil
}

// ListPending returns every booking still awaiting a provider response. Used
// by the deadline recovery sweep on startup.
func (r *MongoBookingRepo) ListPending(ctx context.Context) ([]*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"status": models.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode pending bookings: %w", err)
	}
	return bookings, nil
}
