package paymentRepo

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

const paymentsCollection = "payments"

// MongoPaymentRepo implements PaymentRepository backed by MongoDB.
type MongoPaymentRepo struct {
	coll *mongo.Collection
}

// NewMongoPaymentRepo returns a repository bound to the payments collection.
func NewMongoPaymentRepo() *MongoPaymentRepo {
	return &MongoPaymentRepo{coll: database.Collection(paymentsCollection)}
}

func (r *MongoPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, payment); err != nil {
		return fmt.Errorf("failed to insert payment %s: %w", payment.ID, err)
	}
	return nil
}

func (r *MongoPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var payment models.Payment
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&payment)
	if err == mongo.ErrNoDocuments {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %s: %w", id, err)
	}
	return &payment, nil
}

// UpdateState moves the payment from expected to next, recording the captured
// amount. A filter miss reports ErrConflict so the orchestrator can re-read
// and decide whether the transition already happened.
func (r *MongoPaymentRepo) UpdateState(ctx context.Context, id string, expected, next models.PaymentState, capturedAmount float64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"id": id, "state": expected}
	update := bson.M{
		"$set": bson.M{
			"state":          next,
			"capturedAmount": capturedAmount,
			"updatedAt":      time.Now(),
		},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		count, countErr := r.coll.CountDocuments(ctx, bson.M{"id": id})
		if countErr == nil && count == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}
	return nil
}
