// Package deadline enforces the response window on pending bookings: a set
// of scheduled, cancellable timers keyed by booking id.
package deadline

import (
	"context"
	"errors"
	"sync"
	"time"

	bookingRepo "swiftaid/database/repository/booking"
	"swiftaid/models"
	"swiftaid/services/booking"

	"go.uber.org/zap"
)

// Expirer is the slice of the state machine the manager drives. A firing
// that arrives after the booking left pending gets ErrInvalidTransition,
// which the manager treats as a clean no-op.
type Expirer interface {
	Expire(ctx context.Context, bookingID string) (*models.Booking, error)
}

// Manager tracks one timer per watched booking. Timers are in-process and
// not durable: Recover reconciles state after a restart.
type Manager struct {
	expirer Expirer
	repo    bookingRepo.BookingRepository
	logger  *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewManager creates a deadline manager driving the given expirer.
func NewManager(expirer Expirer, repo bookingRepo.BookingRepository, logger *zap.Logger) *Manager {
	return &Manager{
		expirer: expirer,
		repo:    repo,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
}

// Watch registers a timer that expires the booking once the deadline passes.
// Watching an already-watched id resets its timer.
func (m *Manager) Watch(bookingID string, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[bookingID]; ok {
		t.Stop()
	}
	m.timers[bookingID] = time.AfterFunc(time.Until(deadline), func() {
		m.fire(bookingID)
	})
}

// Cancel deregisters the timer for a booking. Best-effort: the timer may
// already be in flight, in which case the state machine's precondition turns
// the firing into a no-op.
func (m *Manager) Cancel(bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[bookingID]; ok {
		t.Stop()
		delete(m.timers, bookingID)
	}
}

func (m *Manager) fire(bookingID string) {
	m.mu.Lock()
	delete(m.timers, bookingID)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := m.expirer.Expire(ctx, bookingID)
	switch {
	case err == nil:
		m.logger.Info("booking expired", zap.String("bookingId", bookingID))
	case errors.Is(err, booking.ErrInvalidTransition):
		// Lost the race to accept/decline/cancel; nothing to do.
		m.logger.Debug("expiry fired after booking left pending",
			zap.String("bookingId", bookingID))
	default:
		m.logger.Error("expiry failed", zap.String("bookingId", bookingID), zap.Error(err))
	}
}

// Recover reconciles after a restart: pending bookings whose deadline has
// already passed are expired eagerly, the rest are re-registered.
func (m *Manager) Recover(ctx context.Context) error {
	pending, err := m.repo.ListPending(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	var expired, rearmed int
	for _, b := range pending {
		if b.ResponseDeadline == nil {
			m.logger.Warn("pending booking without a deadline",
				zap.String("bookingId", b.ID))
			continue
		}
		if b.ResponseDeadline.After(now) {
			m.Watch(b.ID, *b.ResponseDeadline)
			rearmed++
			continue
		}
		if _, err := m.expirer.Expire(ctx, b.ID); err != nil && !errors.Is(err, booking.ErrInvalidTransition) {
			m.logger.Error("recovery expiry failed",
				zap.String("bookingId", b.ID), zap.Error(err))
			continue
		}
		expired++
	}

	m.logger.Info("deadline recovery sweep finished",
		zap.Int("expired", expired), zap.Int("rearmed", rearmed))
	return nil
}
