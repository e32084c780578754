package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swiftaid/database/repository"
	bookingRepo "swiftaid/database/repository/booking"
	"swiftaid/models"
	"swiftaid/services/matching"
	"swiftaid/services/payment"
	"swiftaid/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBookingService implements BookingService. Transitions for a given
// booking id are serialized through a keyed mutex in-process, and the
// repository's status-conditional update catches whatever the lock cannot
// see (other processes, requeued work).
type DefaultBookingService struct {
	Repo      bookingRepo.BookingRepository
	Payments  payment.Orchestrator
	Matching  matching.MatchingService
	Deadlines DeadlineWatcher
	Alerts    AlertDispatcher

	SOSWindow    time.Duration
	NormalWindow time.Duration
	Logger       *zap.Logger

	locks *utils.KeyedMutex
}

// NewBookingService wires the state machine. Deadlines is set after
// construction because the deadline manager needs the service to expire
// bookings through.
func NewBookingService(
	repo bookingRepo.BookingRepository,
	payments payment.Orchestrator,
	matchingSvc matching.MatchingService,
	alerts AlertDispatcher,
	sosWindow, normalWindow time.Duration,
	logger *zap.Logger,
) *DefaultBookingService {
	return &DefaultBookingService{
		Repo:         repo,
		Payments:     payments,
		Matching:     matchingSvc,
		Alerts:       alerts,
		SOSWindow:    sosWindow,
		NormalWindow: normalWindow,
		Logger:       logger,
		locks:        utils.NewKeyedMutex(),
	}
}

// Create authorizes the customer's payment and persists a pending booking.
// SOS bookings authorize the full amount up front; normal bookings authorize
// the deposit. An authorization decline aborts creation: no booking is
// persisted.
func (s *DefaultBookingService) Create(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	deposit := req.DepositAmount
	window := s.NormalWindow
	if req.Mode == models.ModeSOS {
		// Full payment upfront for emergencies.
		deposit = req.TotalAmount
		window = s.SOSWindow
	}

	now := time.Now()
	deadline := now.Add(window)
	b := &models.Booking{
		ID:         uuid.New().String(),
		Mode:       req.Mode,
		Status:     models.StatusPending,
		CustomerID: req.CustomerID,
		ProviderID: req.ProviderID,
		Service: models.ServiceRef{
			CategoryID:    req.CategoryID,
			SubcategoryID: req.SubcategoryID,
			BasePrice:     req.BasePrice,
		},
		TotalAmount:      req.TotalAmount,
		DepositAmount:    deposit,
		ResponseDeadline: &deadline,
		CreatedAt:        now,
		StatusChangedAt:  now,
	}

	p, err := s.Payments.Authorize(ctx, b.ID, deposit)
	if err != nil {
		return nil, err
	}
	b.PaymentRef = p.ID

	if err := s.Repo.Create(ctx, b); err != nil {
		// The hold exists but the booking does not; release it so the
		// customer is not left holding an authorization for nothing.
		if refundErr := s.Payments.Refund(ctx, p.ID); refundErr != nil {
			s.Logger.Error("failed to release authorization after create failure",
				zap.String("paymentId", p.ID), zap.Error(refundErr))
		}
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}

	s.Deadlines.Watch(b.ID, deadline)

	s.Logger.Info("booking created",
		zap.String("bookingId", b.ID),
		zap.String("mode", string(b.Mode)),
		zap.Float64("authorized", deposit),
		zap.Time("responseDeadline", deadline))

	if b.Mode == models.ModeSOS {
		s.fanOutCandidates(ctx, b, req)
	}
	return b, nil
}

// fanOutCandidates ranks providers for an SOS booking and enqueues alerts.
// An empty candidate list is a valid state: the booking stays pending and
// the customer is offered a retry.
func (s *DefaultBookingService) fanOutCandidates(ctx context.Context, b *models.Booking, req models.BookingRequest) {
	candidates, err := s.Matching.RankCandidates(ctx, req.CategoryID, req.Location, req.Urgency)
	if err != nil {
		s.Logger.Error("candidate ranking failed",
			zap.String("bookingId", b.ID), zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}
	if err := s.Alerts.DispatchSOSAlerts(ctx, b, candidates); err != nil {
		s.Logger.Error("sos alert dispatch failed",
			zap.String("bookingId", b.ID), zap.Error(err))
	}
}

// Accept confirms a pending booking for a provider. For SOS bookings the
// provider id is assigned here; concurrent accepts resolve to exactly one
// winner and losers get ErrAlreadyAssigned.
func (s *DefaultBookingService) Accept(ctx context.Context, bookingID, providerID string) (*models.Booking, error) {
	if providerID == "" {
		return nil, errors.New("missing provider id")
	}

	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if b.Status != models.StatusPending {
		if b.Status == models.StatusConfirmed && b.ProviderID == providerID {
			// Retried accept by the winner.
			return b, nil
		}
		if b.ProviderID != "" && b.ProviderID != providerID {
			return nil, fmt.Errorf("%w: booking %s", ErrAlreadyAssigned, bookingID)
		}
		return nil, fmt.Errorf("%w: cannot accept from %s", ErrInvalidTransition, b.Status)
	}

	if b.ProviderID != "" && b.ProviderID != providerID {
		// Normal-mode bookings target a specific provider at creation.
		return nil, fmt.Errorf("%w: booking %s", ErrAlreadyAssigned, bookingID)
	}

	if b.ResponseDeadline != nil && !time.Now().Before(*b.ResponseDeadline) {
		return nil, fmt.Errorf("%w: response deadline elapsed", ErrInvalidTransition)
	}

	// Best-effort cancel; the timer may already be in flight, in which case
	// the CAS below decides who wins.
	s.Deadlines.Cancel(bookingID)

	b.ProviderID = providerID
	if err := s.transition(ctx, b, models.StatusConfirmed); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Lost the race after our read; report what actually happened.
			if cur, loadErr := s.load(ctx, bookingID); loadErr == nil {
				if cur.ProviderID != "" && cur.ProviderID != providerID {
					return nil, fmt.Errorf("%w: booking %s", ErrAlreadyAssigned, bookingID)
				}
			}
		}
		return nil, err
	}

	s.Logger.Info("booking accepted",
		zap.String("bookingId", bookingID), zap.String("providerId", providerID))
	return b, nil
}

// Decline rejects a pending booking and refunds the authorization in full.
// A declined customer must never be left holding a hold.
func (s *DefaultBookingService) Decline(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot decline from %s", ErrInvalidTransition, b.Status)
	}

	s.Deadlines.Cancel(bookingID)
	return s.applyWithRefund(ctx, b, models.StatusDeclined)
}

// Start moves a confirmed booking to in_progress. No payment side effect.
func (s *DefaultBookingService) Start(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, b.Status)
	}
	if err := s.transition(ctx, b, models.StatusInProgress); err != nil {
		return nil, err
	}

	s.Logger.Info("booking started", zap.String("bookingId", bookingID))
	return b, nil
}

// Complete finishes an in-progress booking and captures the remaining
// balance against the hold.
func (s *DefaultBookingService) Complete(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, b.Status)
	}

	prev := b.Status
	prevDeadline := b.ResponseDeadline
	if err := s.transition(ctx, b, models.StatusCompleted); err != nil {
		return nil, err
	}

	if err := s.Payments.Capture(ctx, b.PaymentRef, b.TotalAmount); err != nil {
		s.rollback(ctx, b, prev, prevDeadline)
		return nil, err
	}

	s.Logger.Info("booking completed",
		zap.String("bookingId", bookingID), zap.Float64("captured", b.TotalAmount))
	return b, nil
}

// Cancel aborts a booking from any non-terminal working state and refunds
// whatever has been authorized or captured so far. How much of a late
// cancellation is returned is the refund policy's concern, not the state
// machine's.
func (s *DefaultBookingService) Cancel(ctx context.Context, bookingID, actor string) (*models.Booking, error) {
	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case models.StatusPending, models.StatusConfirmed, models.StatusInProgress:
	default:
		return nil, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, b.Status)
	}

	if b.Status == models.StatusPending {
		s.Deadlines.Cancel(bookingID)
	}

	b.CancelledBy = actor
	return s.applyWithRefund(ctx, b, models.StatusCancelled)
}

// Expire times out a pending booking whose response window has passed. Only
// the deadline manager calls this; a firing that lost the race to another
// transition gets ErrInvalidTransition, which the manager swallows.
func (s *DefaultBookingService) Expire(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot expire from %s", ErrInvalidTransition, b.Status)
	}
	if b.ResponseDeadline != nil && time.Now().Before(*b.ResponseDeadline) {
		return nil, fmt.Errorf("%w: response deadline not reached", ErrInvalidTransition)
	}

	return s.applyWithRefund(ctx, b, models.StatusExpired)
}

func (s *DefaultBookingService) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.load(ctx, bookingID)
}

func (s *DefaultBookingService) load(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.Repo.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// transition applies a single status edge via the repository's conditional
// update. The deadline is cleared on the way out of pending, keeping the
// deadline-iff-pending invariant true at every persisted instant.
func (s *DefaultBookingService) transition(ctx context.Context, b *models.Booking, next models.BookingStatus) error {
	prev := b.Status
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}

	b.Status = next
	b.StatusChangedAt = time.Now()
	if next != models.StatusPending {
		b.ResponseDeadline = nil
	}

	err := s.Repo.ApplyTransition(ctx, b, prev)
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %s -> %s lost to a concurrent transition", ErrInvalidTransition, prev, next)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBookingNotFound, b.ID)
	}
	return err
}

// applyWithRefund is the shared decline/cancel/expire path: commit the
// transition, then refund. If the refund exhausts its retries the transition
// is rolled back so booking state and payment state cannot diverge.
func (s *DefaultBookingService) applyWithRefund(ctx context.Context, b *models.Booking, next models.BookingStatus) (*models.Booking, error) {
	prev := b.Status
	prevDeadline := b.ResponseDeadline

	if err := s.transition(ctx, b, next); err != nil {
		return nil, err
	}

	if b.PaymentRef != "" {
		if err := s.Payments.Refund(ctx, b.PaymentRef); err != nil {
			s.rollback(ctx, b, prev, prevDeadline)
			return nil, err
		}
	}

	s.Logger.Info("booking transitioned",
		zap.String("bookingId", b.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	return b, nil
}

// rollback is the compensating action for a failed payment side effect: the
// booking returns to its prior status and, when that status is pending, the
// deadline watch is re-registered.
func (s *DefaultBookingService) rollback(ctx context.Context, b *models.Booking, prev models.BookingStatus, prevDeadline *time.Time) {
	cur := b.Status
	b.Status = prev
	b.ResponseDeadline = prevDeadline
	b.CancelledBy = ""
	b.StatusChangedAt = time.Now()

	if err := s.Repo.ApplyTransition(ctx, b, cur); err != nil {
		s.Logger.Error("compensating rollback failed",
			zap.String("bookingId", b.ID),
			zap.String("from", string(cur)),
			zap.String("to", string(prev)),
			zap.Error(err))
		return
	}
	if prev == models.StatusPending && prevDeadline != nil {
		s.Deadlines.Watch(b.ID, *prevDeadline)
	}
	s.Logger.Warn("booking transition compensated",
		zap.String("bookingId", b.ID),
		zap.String("restored", string(prev)))
}

func validateRequest(req models.BookingRequest) error {
	if req.Mode != models.ModeNormal && req.Mode != models.ModeSOS {
		return fmt.Errorf("unsupported booking mode: %s", req.Mode)
	}
	if req.CustomerID == "" {
		return errors.New("missing customer id")
	}
	if req.CategoryID == "" {
		return errors.New("missing service category")
	}
	if req.TotalAmount <= 0 {
		return errors.New("invalid total amount")
	}
	if req.Mode == models.ModeNormal {
		if req.DepositAmount <= 0 || req.DepositAmount > req.TotalAmount {
			return errors.New("invalid deposit amount")
		}
	}
	return nil
}
