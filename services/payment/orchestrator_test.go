package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"swiftaid/database/repository"
	"swiftaid/models"

	"go.uber.org/zap"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment

	UpdateError error
	// onUpdate runs before UpdateState applies, simulating a concurrent
	// writer landing between the orchestrator's read and its conditional
	// update.
	onUpdate func()
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[string]*models.Payment)}
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *p
	m.payments[p.ID] = &copy
	return nil
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (m *mockPaymentRepo) UpdateState(ctx context.Context, id string, expected, next models.PaymentState, capturedAmount float64) error {
	if m.onUpdate != nil {
		m.onUpdate()
	}
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.State != expected {
		return repository.ErrConflict
	}
	p.State = next
	p.CapturedAmount = capturedAmount
	p.UpdatedAt = time.Now()
	return nil
}

// setState force-writes a payment for scenario setup.
func (m *mockPaymentRepo) setState(id string, state models.PaymentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		p.State = state
	}
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// mockGateway fails each operation FailuresBefore times with a transient
// error before succeeding, and mirrors the real processor's contract: a
// capture can never exceed the amount held for that ref. Decline* flags make
// individual operations permanent failures; Delay makes every call block so
// timeout handling can be observed.
type mockGateway struct {
	mu sync.Mutex

	FailuresBefore int
	Declined       bool
	DeclineCapture bool
	DeclineRefund  bool
	Delay          time.Duration

	AuthorizeCalls int32
	CaptureCalls   int32
	ChargeCalls    int32
	RefundCalls    int32

	failures   int
	authorized map[string]int64
}

var errGatewayTimeout = errors.New("gateway timeout")

func (g *mockGateway) wait(ctx context.Context) error {
	if g.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(g.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *mockGateway) transientFailure() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures < g.FailuresBefore {
		g.failures++
		return errGatewayTimeout
	}
	return nil
}

func (g *mockGateway) Authorize(ctx context.Context, idempotencyKey string, amountCents int64, currency string) (string, error) {
	atomic.AddInt32(&g.AuthorizeCalls, 1)
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if g.Declined {
		return "", fmt.Errorf("%w: card rejected", errGatewayDeclined)
	}
	if err := g.transientFailure(); err != nil {
		return "", err
	}
	ref := "pi_" + idempotencyKey
	g.mu.Lock()
	if g.authorized == nil {
		g.authorized = make(map[string]int64)
	}
	g.authorized[ref] = amountCents
	g.mu.Unlock()
	return ref, nil
}

func (g *mockGateway) Capture(ctx context.Context, idempotencyKey, gatewayRef string, amountCents int64) error {
	atomic.AddInt32(&g.CaptureCalls, 1)
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.DeclineCapture {
		return fmt.Errorf("%w: capture rejected", errGatewayDeclined)
	}
	g.mu.Lock()
	held := g.authorized[gatewayRef]
	g.mu.Unlock()
	if amountCents > held {
		return fmt.Errorf("%w: amount_to_capture %d exceeds authorized amount %d",
			errGatewayDeclined, amountCents, held)
	}
	return g.transientFailure()
}

func (g *mockGateway) Charge(ctx context.Context, idempotencyKey string, amountCents int64, currency string) (string, error) {
	atomic.AddInt32(&g.ChargeCalls, 1)
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if err := g.transientFailure(); err != nil {
		return "", err
	}
	return "pi_" + idempotencyKey, nil
}

func (g *mockGateway) Refund(ctx context.Context, idempotencyKey, gatewayRef string) error {
	atomic.AddInt32(&g.RefundCalls, 1)
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.DeclineRefund {
		return fmt.Errorf("%w: refund rejected", errGatewayDeclined)
	}
	return g.transientFailure()
}

func newTestOrchestrator(repo *mockPaymentRepo, gw *mockGateway) *DefaultOrchestrator {
	return NewOrchestrator(repo, gw, "usd", 3, time.Millisecond, time.Second, zap.NewNop())
}

// ──────────────────────────────────────────────
// AUTHORIZE
// ──────────────────────────────────────────────

func TestAuthorize_Success(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, err := o.Authorize(context.Background(), "bk-1", 50.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.State != models.PaymentAuthorized {
		t.Errorf("expected authorized, got %s", p.State)
	}
	if p.Amount != 50.00 {
		t.Errorf("expected amount 50.00, got %.2f", p.Amount)
	}
	if p.GatewayRef == "" {
		t.Error("expected gateway ref recorded")
	}

	stored, err := repo.GetByID(context.Background(), p.ID)
	if err != nil || stored.State != models.PaymentAuthorized {
		t.Errorf("expected persisted authorized payment, got %+v (%v)", stored, err)
	}
}

func TestAuthorize_Declined_NoRetryNoRecord(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{Declined: true}
	o := newTestOrchestrator(repo, gw)

	_, err := o.Authorize(context.Background(), "bk-1", 50.00)
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
	if gw.AuthorizeCalls != 1 {
		t.Errorf("declines must not be retried, got %d calls", gw.AuthorizeCalls)
	}
	if len(repo.payments) != 0 {
		t.Error("no payment record may exist for a declined authorization")
	}
}

func TestAuthorize_TransientThenSuccess_Retries(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{FailuresBefore: 2}
	o := newTestOrchestrator(repo, gw)

	p, err := o.Authorize(context.Background(), "bk-1", 25.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.AuthorizeCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", gw.AuthorizeCalls)
	}
	if p.State != models.PaymentAuthorized {
		t.Errorf("expected authorized, got %s", p.State)
	}
}

func TestAuthorize_RetriesExhausted_OperationFailed(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{FailuresBefore: 10}
	o := newTestOrchestrator(repo, gw)

	_, err := o.Authorize(context.Background(), "bk-1", 25.00)
	if !errors.Is(err, ErrPaymentOperationFailed) {
		t.Fatalf("expected ErrPaymentOperationFailed, got %v", err)
	}
	if gw.AuthorizeCalls != 3 {
		t.Errorf("expected exactly 3 bounded attempts, got %d", gw.AuthorizeCalls)
	}
}

func TestAuthorize_InvalidAmount(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(newMockPaymentRepo(), &mockGateway{})
	if _, err := o.Authorize(context.Background(), "bk-1", 0); err == nil {
		t.Fatal("expected an error for a zero amount")
	}
}

// ──────────────────────────────────────────────
// CAPTURE
// ──────────────────────────────────────────────

func TestCapture_FromAuthorized(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)
	if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentCaptured {
		t.Errorf("expected captured, got %s", stored.State)
	}
	if stored.CapturedAmount != 100.00 {
		t.Errorf("expected captured amount 100.00, got %.2f", stored.CapturedAmount)
	}
}

func TestCapture_AlreadyCaptured_NoOp(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)
	if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
		t.Fatalf("first capture failed: %v", err)
	}
	if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
		t.Fatalf("repeated capture must be a no-op success, got %v", err)
	}
	if gw.CaptureCalls != 1 {
		t.Errorf("repeated capture must not hit the gateway again, got %d calls", gw.CaptureCalls)
	}
}

func TestCapture_DepositHold_SettlesBalanceAsSeparateCharge(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	// Deposit hold of 20 against a 100 total: the hold is captured in full
	// and the remaining 80 moves as its own charge.
	p, _ := o.Authorize(context.Background(), "bk-1", 20.00)
	if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gw.CaptureCalls != 1 {
		t.Errorf("expected one hold capture, got %d", gw.CaptureCalls)
	}
	if gw.ChargeCalls != 1 {
		t.Errorf("expected one balance charge, got %d", gw.ChargeCalls)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentCaptured {
		t.Errorf("expected captured, got %s", stored.State)
	}
	if stored.CapturedAmount != 100.00 {
		t.Errorf("expected total settlement of 100.00, got %.2f", stored.CapturedAmount)
	}
}

func TestCapture_FullHold_NoBalanceCharge(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 50.00)
	if err := o.Capture(context.Background(), p.ID, 50.00); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.ChargeCalls != 0 {
		t.Errorf("a fully-held amount must settle with the capture alone, got %d charges", gw.ChargeCalls)
	}
}

func TestCapture_Declined_MarksFailedAndMapsError(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)
	gw.DeclineCapture = true

	err := o.Capture(context.Background(), p.ID, 100.00)
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentFailed {
		t.Errorf("a permanent rejection must mark the payment failed, got %s", stored.State)
	}
}

func TestCapture_RefundedPayment_Rejected(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)
	repo.setState(p.ID, models.PaymentRefunded)

	if err := o.Capture(context.Background(), p.ID, 100.00); err == nil {
		t.Fatal("capturing a refunded payment must fail")
	}
	if gw.CaptureCalls != 0 {
		t.Error("the gateway must not be touched for an invalid capture")
	}
}

func TestCapture_UnknownPayment_NotFound(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(newMockPaymentRepo(), &mockGateway{})
	err := o.Capture(context.Background(), "nope", 10.00)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────
// REFUND
// ──────────────────────────────────────────────

func TestRefund_FromAuthorized_ReleasesHold(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 50.00)
	if err := o.Refund(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentRefunded {
		t.Errorf("expected refunded, got %s", stored.State)
	}
}

func TestRefund_FromCaptured_ReversesCharge(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)
	if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if err := o.Refund(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentRefunded {
		t.Errorf("expected refunded, got %s", stored.State)
	}
}

func TestRefund_AlreadyRefunded_NoOp(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 50.00)
	if err := o.Refund(context.Background(), p.ID); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	if err := o.Refund(context.Background(), p.ID); err != nil {
		t.Fatalf("repeated refund must be a no-op success, got %v", err)
	}
	if gw.RefundCalls != 1 {
		t.Errorf("repeated refund must not hit the gateway again, got %d calls", gw.RefundCalls)
	}
}

func TestRefund_RetriesExhausted_OperationFailed(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 50.00)
	gw.FailuresBefore = 10
	gw.failures = 0

	err := o.Refund(context.Background(), p.ID)
	if !errors.Is(err, ErrPaymentOperationFailed) {
		t.Fatalf("expected ErrPaymentOperationFailed, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentAuthorized {
		t.Errorf("a failed refund must leave the payment authorized, got %s", stored.State)
	}
}

func TestRefund_Declined_MarksFailedAndMapsError(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 50.00)
	gw.DeclineRefund = true

	err := o.Refund(context.Background(), p.ID)
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.State != models.PaymentFailed {
		t.Errorf("a permanent rejection must mark the payment failed, got %s", stored.State)
	}
}

// ──────────────────────────────────────────────
// GATEWAY TIMEOUT
// ──────────────────────────────────────────────

func TestGatewayCalls_BoundedByTimeout(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{Delay: time.Second}
	o := NewOrchestrator(repo, gw, "usd", 2, time.Millisecond, 10*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := o.Authorize(context.Background(), "bk-1", 50.00)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrPaymentOperationFailed) {
		t.Fatalf("expected ErrPaymentOperationFailed, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("expected the per-attempt timeout to bound the call, took %s", elapsed)
	}
	if gw.AuthorizeCalls != 2 {
		t.Errorf("expected 2 timed-out attempts, got %d", gw.AuthorizeCalls)
	}
}

// ──────────────────────────────────────────────
// STATE RECONCILIATION
// ──────────────────────────────────────────────

func TestCapture_StateConflictAlreadyLanded_TreatedAsSuccess(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)

	// Another writer lands the capture between our read and the conditional
	// update, so the update misses but the wanted state is already there.
	repo.UpdateError = repository.ErrConflict
	repo.onUpdate = func() { repo.setState(p.ID, models.PaymentCaptured) }

	if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
		t.Fatalf("a conflict on an already-captured payment must reconcile to success, got %v", err)
	}
}

func TestConcurrentCaptures_SingleGatewayCall(t *testing.T) {
	t.Parallel()

	repo := newMockPaymentRepo()
	gw := &mockGateway{}
	o := newTestOrchestrator(repo, gw)

	p, _ := o.Authorize(context.Background(), "bk-1", 100.00)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.Capture(context.Background(), p.ID, 100.00); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if gw.CaptureCalls != 1 {
		t.Errorf("expected exactly one gateway capture, got %d", gw.CaptureCalls)
	}
}
