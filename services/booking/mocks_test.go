package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"swiftaid/database/repository"
	"swiftaid/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

// MockBookingRepo is an in-memory BookingRepository with the same
// compare-and-swap contract as the Mongo implementation.
type MockBookingRepo struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking

	// Counters for verification
	CreateCallCount     int32
	TransitionCallCount int32

	// Error injection
	CreateError     error
	TransitionError error
}

func NewMockBookingRepo() *MockBookingRepo {
	return &MockBookingRepo{bookings: make(map[string]*models.Booking)}
}

func (m *MockBookingRepo) AddBooking(b *models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *b
	m.bookings[b.ID] = &copy
}

func (m *MockBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *b
	m.bookings[b.ID] = &copy
	return nil
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (m *MockBookingRepo) ApplyTransition(ctx context.Context, b *models.Booking, expected models.BookingStatus) error {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return m.TransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.bookings[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrConflict
	}
	copy := *b
	m.bookings[b.ID] = &copy
	return nil
}

func (m *MockBookingRepo) ListPending(ctx context.Context) ([]*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.Booking
	for _, b := range m.bookings {
		if b.Status == models.StatusPending {
			copy := *b
			result = append(result, &copy)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT ORCHESTRATOR
// ──────────────────────────────────────────────

// MockOrchestrator implements payment.Orchestrator in memory with the same
// idempotency semantics as the real one.
type MockOrchestrator struct {
	mu       sync.Mutex
	payments map[string]*models.Payment

	AuthorizeCallCount int32
	CaptureCallCount   int32 // non-no-op captures only
	RefundCallCount    int32 // non-no-op refunds only

	AuthorizeError error
	CaptureError   error
	RefundError    error
}

func NewMockOrchestrator() *MockOrchestrator {
	return &MockOrchestrator{payments: make(map[string]*models.Payment)}
}

func (m *MockOrchestrator) Authorize(ctx context.Context, bookingID string, amount float64) (*models.Payment, error) {
	atomic.AddInt32(&m.AuthorizeCallCount, 1)
	if m.AuthorizeError != nil {
		return nil, m.AuthorizeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &models.Payment{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		Amount:    amount,
		Currency:  "usd",
		State:     models.PaymentAuthorized,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.payments[p.ID] = p
	return p, nil
}

// Capture mirrors the real orchestrator's settlement contract: an amount
// above the hold is legal and settles as hold capture plus balance charge,
// so CapturedAmount always lands on the requested total.
func (m *MockOrchestrator) Capture(ctx context.Context, paymentID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.State == models.PaymentCaptured {
		return nil // idempotent no-op
	}
	if m.CaptureError != nil {
		return m.CaptureError
	}
	atomic.AddInt32(&m.CaptureCallCount, 1)
	p.State = models.PaymentCaptured
	p.CapturedAmount = amount
	return nil
}

func (m *MockOrchestrator) Refund(ctx context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.State == models.PaymentRefunded {
		return nil // idempotent no-op
	}
	if m.RefundError != nil {
		return m.RefundError
	}
	atomic.AddInt32(&m.RefundCallCount, 1)
	p.State = models.PaymentRefunded
	return nil
}

func (m *MockOrchestrator) GetPayment(paymentID string) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[paymentID]; ok {
		copy := *p
		return &copy
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK DEADLINE WATCHER
// ──────────────────────────────────────────────

type MockWatcher struct {
	mu        sync.Mutex
	watched   map[string]time.Time
	cancelled map[string]bool
}

func NewMockWatcher() *MockWatcher {
	return &MockWatcher{
		watched:   make(map[string]time.Time),
		cancelled: make(map[string]bool),
	}
}

func (m *MockWatcher) Watch(bookingID string, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[bookingID] = deadline
	delete(m.cancelled, bookingID)
}

func (m *MockWatcher) Cancel(bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[bookingID] = true
}

func (m *MockWatcher) Watched(bookingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watched[bookingID]
	return ok
}

func (m *MockWatcher) Cancelled(bookingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[bookingID]
}

// ──────────────────────────────────────────────
// MOCK MATCHER & DISPATCHER
// ──────────────────────────────────────────────

type MockMatcher struct {
	Candidates []models.ProviderCandidate
	Err        error
	CallCount  int32
}

func (m *MockMatcher) RankCandidates(ctx context.Context, categoryID string, location models.GeoPoint, urgency int) ([]models.ProviderCandidate, error) {
	atomic.AddInt32(&m.CallCount, 1)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Candidates, nil
}

type MockDispatcher struct {
	mu         sync.Mutex
	Dispatched map[string][]models.ProviderCandidate
	Err        error
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{Dispatched: make(map[string][]models.ProviderCandidate)}
}

func (m *MockDispatcher) DispatchSOSAlerts(ctx context.Context, b *models.Booking, candidates []models.ProviderCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Dispatched[b.ID] = candidates
	return nil
}

func (m *MockDispatcher) DispatchedFor(bookingID string) []models.ProviderCandidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Dispatched[bookingID]
}

// ──────────────────────────────────────────────
// TEST FIXTURE
// ──────────────────────────────────────────────

type fixture struct {
	svc        *DefaultBookingService
	repo       *MockBookingRepo
	payments   *MockOrchestrator
	matcher    *MockMatcher
	watcher    *MockWatcher
	dispatcher *MockDispatcher
}

func newFixture() *fixture {
	repo := NewMockBookingRepo()
	payments := NewMockOrchestrator()
	matcher := &MockMatcher{}
	watcher := NewMockWatcher()
	dispatcher := NewMockDispatcher()

	svc := NewBookingService(
		repo, payments, matcher, dispatcher,
		15*time.Minute, 24*time.Hour,
		zap.NewNop(),
	)
	svc.Deadlines = watcher

	return &fixture{
		svc:        svc,
		repo:       repo,
		payments:   payments,
		matcher:    matcher,
		watcher:    watcher,
		dispatcher: dispatcher,
	}
}
