package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"swiftaid/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeSOSAlert = "sos:alert"

// SOSAlertPayload is the task body for one candidate alert.
type SOSAlertPayload struct {
	BookingID  string    `json:"bookingId"`
	ProviderID string    `json:"providerId"`
	CategoryID string    `json:"categoryId"`
	Rank       int       `json:"rank"`
	DistanceKm float64   `json:"distanceKm"`
	Deadline   time.Time `json:"deadline"`
}

// NewSOSAlertTask builds an alert task. The task is useless once the
// response window closes, so the deadline caps retention.
func NewSOSAlertTask(payload SOSAlertPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSOSAlert, b)
	opts := []asynq.Option{
		asynq.Deadline(payload.Deadline),
		asynq.MaxRetry(3),
	}
	return task, opts, nil
}

// AsynqAlertDispatcher enqueues one alert task per ranked candidate. It
// implements the state machine's AlertDispatcher.
type AsynqAlertDispatcher struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewAlertDispatcher creates a dispatcher over the given Redis connection.
func NewAlertDispatcher(redisOpt asynq.RedisClientOpt, logger *zap.Logger) *AsynqAlertDispatcher {
	return &AsynqAlertDispatcher{
		client: asynq.NewClient(redisOpt),
		logger: logger,
	}
}

// DispatchSOSAlerts fans alerts out to the candidate list. Fan-out is bounded
// upstream by the ranker's top-N cut.
func (d *AsynqAlertDispatcher) DispatchSOSAlerts(ctx context.Context, b *models.Booking, candidates []models.ProviderCandidate) error {
	if b.ResponseDeadline == nil {
		return fmt.Errorf("booking %s has no response deadline", b.ID)
	}

	var enqueued int
	for i, c := range candidates {
		task, opts, err := NewSOSAlertTask(SOSAlertPayload{
			BookingID:  b.ID,
			ProviderID: c.ProviderID,
			CategoryID: b.Service.CategoryID,
			Rank:       i + 1,
			DistanceKm: c.DistanceKm,
			Deadline:   *b.ResponseDeadline,
		})
		if err != nil {
			return fmt.Errorf("failed to build alert task: %w", err)
		}
		if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
			d.logger.Error("failed to enqueue sos alert",
				zap.String("bookingId", b.ID),
				zap.String("providerId", c.ProviderID),
				zap.Error(err))
			continue
		}
		enqueued++
	}

	d.logger.Info("sos alerts enqueued",
		zap.String("bookingId", b.ID), zap.Int("count", enqueued))
	return nil
}

// Close releases the underlying asynq client.
func (d *AsynqAlertDispatcher) Close() error {
	return d.client.Close()
}
