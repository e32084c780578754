package notification

import (
	"context"

	"go.uber.org/zap"
)

// SOSAlert is a single candidate notification handed off for delivery.
type SOSAlert struct {
	BookingID  string
	ProviderID string
	CategoryID string
	Rank       int
	DistanceKm float64
}

// NotificationService hands alerts to the delivery channel. The delivery
// mechanics (push, SMS) live outside this service.
type NotificationService interface {
	NotifyProviderSOS(ctx context.Context, alert SOSAlert) error
}

// DefaultNotificationService logs the handoff; deployments plug a real
// delivery integration behind the same interface.
type DefaultNotificationService struct {
	Logger *zap.Logger
}

func (s *DefaultNotificationService) NotifyProviderSOS(ctx context.Context, alert SOSAlert) error {
	s.Logger.Info("sos alert handed off",
		zap.String("bookingId", alert.BookingID),
		zap.String("providerId", alert.ProviderID),
		zap.Int("rank", alert.Rank),
		zap.Float64("distanceKm", alert.DistanceKm))
	return nil
}
