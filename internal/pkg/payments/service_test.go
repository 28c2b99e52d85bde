package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marketly-hq/marketly/app/models"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	payments  map[string]*models.Payment
	subs      map[string]*models.Subscription
	plans     map[string]*models.SubscriptionPlan
	events    map[string]*models.PaymentWebhookEvent
	nextID    uint
	subWrites int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments: make(map[string]*models.Payment),
		subs:     make(map[string]*models.Subscription),
		plans:    make(map[string]*models.SubscriptionPlan),
		events:   make(map[string]*models.PaymentWebhookEvent),
	}
}

func (r *fakeRepo) CreatePayment(p *models.Payment) error {
	if _, exists := r.payments[p.TransactionID]; exists {
		return fmt.Errorf("duplicate transaction id %s", p.TransactionID)
	}
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	cp := *p
	r.payments[p.TransactionID] = &cp
	return nil
}

func (r *fakeRepo) GetPaymentByTransactionID(transactionID string) (*models.Payment, error) {
	p, ok := r.payments[transactionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) CompletePendingPayment(transactionID, newStatus, providerPaymentID string) (bool, error) {
	p, ok := r.payments[transactionID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = newStatus
	if providerPaymentID != "" {
		p.ProviderPaymentID = providerPaymentID
	}
	return true, nil
}

func (r *fakeRepo) SetProviderPaymentID(transactionID, providerPaymentID string) error {
	if p, ok := r.payments[transactionID]; ok {
		p.ProviderPaymentID = providerPaymentID
	}
	return nil
}

func (r *fakeRepo) ListPaymentsByUser(userID uint) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListRecentPayments(limit int, status, provider string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if status != "" && p.Status != status {
			continue
		}
		if provider != "" && p.Provider != provider {
			continue
		}
		out = append(out, *p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) ListStalePendingPayments(provider string, olderThan time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.Provider == provider && p.Status == models.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, *p)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func subKey(userID uint, planID string) string {
	return fmt.Sprintf("%d:%s", userID, planID)
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	key := subKey(sub.UserID, sub.PlanID)
	if existing, ok := r.subs[key]; ok {
		sub.ID = existing.ID
	} else {
		r.nextID++
		sub.ID = r.nextID
	}
	cp := *sub
	r.subs[key] = &cp
	r.subWrites++
	return nil
}

func (r *fakeRepo) GetCurrentSubscription(userID uint) (*models.Subscription, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetActivePlan(planID string) (*models.SubscriptionPlan, error) {
	plan, ok := r.plans[planID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *plan
	return &cp, nil
}

func (r *fakeRepo) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var out []models.SubscriptionPlan
	for _, plan := range r.plans {
		out = append(out, *plan)
	}
	return out, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextID++
	event.ID = r.nextID
	cp := *event
	r.events[key] = &cp
	return true, &cp, nil
}

func (r *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

// noopLocker always grants the lock.
type noopLocker struct{}

func (noopLocker) Acquire(string, time.Duration) (bool, error) { return true, nil }
func (noopLocker) Release(string) error                        { return nil }

// busyLocker always reports the lock as held elsewhere.
type busyLocker struct{}

func (busyLocker) Acquire(string, time.Duration) (bool, error) { return false, nil }
func (busyLocker) Release(string) error                        { return nil }

func newTestService(repo Repository, cfg Config) *Service {
	s := NewService(repo, cfg)
	s.SetLocker(noopLocker{})
	return s
}

func seedPendingPayment(repo *fakeRepo, provider, txnID string) *models.Payment {
	p := &models.Payment{
		UserID:        7,
		PlanID:        "pro",
		PlanName:      "Pro",
		Amount:        999,
		Currency:      models.PaymentCurrency,
		Provider:      provider,
		TransactionID: txnID,
		Status:        models.PaymentStatusPending,
	}
	if err := repo.CreatePayment(p); err != nil {
		panic(err)
	}
	return p
}

func TestInitiateOrderPersistsPendingThenBuildsRedirect(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())

	res, payment, err := svc.InitiateOrder(context.Background(), models.PaymentProviderPayU, OrderRequest{
		UserID:    7,
		PlanID:    "pro",
		PlanName:  "Pro",
		Amount:    999,
		FirstName: "Asha",
		Email:     "asha@example.com",
		Phone:     "9876543210",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(payment.TransactionID, PayUTransactionPrefix) {
		t.Fatalf("transaction id %q missing prefix", payment.TransactionID)
	}
	stored, err := repo.GetPaymentByTransactionID(payment.TransactionID)
	if err != nil {
		t.Fatalf("pending record not persisted: %v", err)
	}
	if stored.Status != models.PaymentStatusPending {
		t.Fatalf("stored status = %q", stored.Status)
	}
	if stored.Amount != 999 || stored.Currency != "INR" {
		t.Fatalf("stored amount/currency = %d %q", stored.Amount, stored.Currency)
	}

	if res.Redirect == nil {
		t.Fatalf("expected redirect form instructions")
	}
	if got := res.Redirect.Fields["txnid"]; got != payment.TransactionID {
		t.Fatalf("redirect txnid %q does not match record %q", got, payment.TransactionID)
	}
	wantHash := SignPayURequest("merchant-key", payment.TransactionID, "999", "Pro", "Asha", "asha@example.com", "merchant-salt")
	if got := res.Redirect.Fields["hash"]; got != wantHash {
		t.Fatalf("hash = %q, want %q", got, wantHash)
	}
}

func TestInitiateOrderRejectsInvalidInput(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())

	tests := []struct {
		name     string
		provider string
		req      OrderRequest
	}{
		{name: "unknown provider", provider: "stripe", req: OrderRequest{UserID: 1, PlanID: "pro", Amount: 999}},
		{name: "missing user", provider: models.PaymentProviderPayU, req: OrderRequest{PlanID: "pro", Amount: 999}},
		{name: "zero amount", provider: models.PaymentProviderPayU, req: OrderRequest{UserID: 1, PlanID: "pro"}},
		{name: "negative amount", provider: models.PaymentProviderPayU, req: OrderRequest{UserID: 1, PlanID: "pro", Amount: -5}},
		{name: "missing plan", provider: models.PaymentProviderPayU, req: OrderRequest{UserID: 1, Amount: 999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.InitiateOrder(context.Background(), tt.provider, tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if len(repo.payments) != 0 {
		t.Fatalf("rejected requests must not persist records, found %d", len(repo.payments))
	}
}

func TestInitiateOrderRejectsWhenUnconfigured(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, Config{PublicBaseURL: "https://app.marketly.example"})

	_, _, err := svc.InitiateOrder(context.Background(), models.PaymentProviderPayU, OrderRequest{UserID: 1, PlanID: "pro", Amount: 999})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if len(repo.payments) != 0 {
		t.Fatalf("unconfigured provider must not persist records")
	}
}

func TestInitiateOrderChecksPlanPrice(t *testing.T) {
	repo := newFakeRepo()
	repo.plans["pro"] = &models.SubscriptionPlan{PlanID: "pro", Name: "Pro", Price: 999, IsActive: true}
	svc := newTestService(repo, testPayUConfig())

	_, _, err := svc.InitiateOrder(context.Background(), models.PaymentProviderPayU, OrderRequest{
		UserID: 7, PlanID: "pro", Amount: 500, FirstName: "Asha", Email: "asha@example.com",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for price mismatch, got %v", err)
	}
	if len(repo.payments) != 0 {
		t.Fatalf("price mismatch must not persist records")
	}
}

func TestInitiateOrderLeavesPendingRecordOnProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"order_amount invalid"}`))
	}))
	defer srv.Close()

	repo := newFakeRepo()
	svc := newTestService(repo, testCashfreeConfig(srv.URL))

	_, payment, err := svc.InitiateOrder(context.Background(), models.PaymentProviderCashfree, OrderRequest{
		UserID: 7, PlanID: "pro", Amount: 999, FirstName: "Asha", Email: "asha@example.com",
	})

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if payment == nil {
		t.Fatalf("expected the persisted record to be returned alongside the error")
	}
	stored, getErr := repo.GetPaymentByTransactionID(payment.TransactionID)
	if getErr != nil {
		t.Fatalf("pending record missing after rejection: %v", getErr)
	}
	if stored.Status != models.PaymentStatusPending {
		t.Fatalf("record status after rejection = %q, want pending", stored.Status)
	}
}

func TestProcessWebhookCompletesPaymentAndActivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return start })

	seedPendingPayment(repo, models.PaymentProviderPayU, "TXN1700000000000abc123def")

	ev, err := ParseWebhook("application/x-www-form-urlencoded",
		[]byte("txnid=TXN1700000000000abc123def&status=success&mihpayid=MIH123"))
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	outcome, err := svc.ProcessWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.StatusChanged || !outcome.SubscriptionActivated {
		t.Fatalf("outcome = %+v", outcome)
	}

	stored, _ := repo.GetPaymentByTransactionID("TXN1700000000000abc123def")
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("payment status = %q", stored.Status)
	}
	if stored.ProviderPaymentID != "MIH123" {
		t.Fatalf("provider payment id = %q", stored.ProviderPaymentID)
	}

	sub, err := repo.GetCurrentSubscription(7)
	if err != nil {
		t.Fatalf("subscription not written: %v", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("subscription status = %q", sub.Status)
	}
	if !sub.CurrentPeriodStart.Equal(start) {
		t.Fatalf("period start = %v", sub.CurrentPeriodStart)
	}
	if !sub.CurrentPeriodEnd.Equal(start.Add(30 * 24 * time.Hour)) {
		t.Fatalf("period end = %v, want 30 days after start", sub.CurrentPeriodEnd)
	}
}

func TestProcessWebhookReplayIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())

	seedPendingPayment(repo, models.PaymentProviderPayU, "TXN1700000000000abc123def")

	body := []byte("txnid=TXN1700000000000abc123def&status=success&mihpayid=MIH123")
	for i := 0; i < 3; i++ {
		ev, err := ParseWebhook("application/x-www-form-urlencoded", body)
		if err != nil {
			t.Fatalf("parsing webhook: %v", err)
		}
		outcome, err := svc.ProcessWebhook(context.Background(), ev)
		if err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i, err)
		}
		if i > 0 && !outcome.Duplicate {
			t.Fatalf("delivery %d not flagged as duplicate", i)
		}
	}

	stored, _ := repo.GetPaymentByTransactionID("TXN1700000000000abc123def")
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("payment status = %q", stored.Status)
	}
	if repo.subWrites != 1 {
		t.Fatalf("subscription written %d times, want 1", repo.subWrites)
	}
	if len(repo.events) != 1 {
		t.Fatalf("webhook event rows = %d, want 1", len(repo.events))
	}
}

func TestProcessWebhookNeverRegressesTerminalStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())

	p := seedPendingPayment(repo, models.PaymentProviderPayU, "TXN1700000000000abc123def")
	repo.payments[p.TransactionID].Status = models.PaymentStatusCompleted
	repo.payments[p.TransactionID].ProviderPaymentID = "MIH123"

	// Distinct payload so event dedup does not short-circuit the attempt.
	ev, err := ParseWebhook("application/x-www-form-urlencoded",
		[]byte("txnid=TXN1700000000000abc123def&status=failure&mihpayid=MIH999"))
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	outcome, err := svc.ProcessWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.StatusChanged {
		t.Fatalf("terminal record must not change status")
	}

	stored, _ := repo.GetPaymentByTransactionID("TXN1700000000000abc123def")
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("payment status = %q, regressed from completed", stored.Status)
	}
	if repo.subWrites != 0 {
		t.Fatalf("late failure webhook must not touch subscriptions")
	}
}

func TestProcessWebhookUnknownTransactionIsNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())

	ev, err := ParseWebhook("application/x-www-form-urlencoded",
		[]byte("txnid=TXN0000000000000nothere&status=success"))
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	_, err = svc.ProcessWebhook(context.Background(), ev)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	if len(repo.payments) != 0 || repo.subWrites != 0 {
		t.Fatalf("unresolvable webhook must not create payment or subscription rows")
	}
}

func TestProcessWebhookCancelledOrderFailsWithoutSubscription(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testCashfreeConfig("https://sandbox.cashfree.com/pg"))

	seedPendingPayment(repo, models.PaymentProviderCashfree, "CF1700000000000abc123def")

	ev, err := ParseWebhook("application/json",
		[]byte(`{"data":{"order":{"order_id":"CF1700000000000abc123def","order_status":"CANCELLED","cf_order_id":"CF99"}}}`))
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	outcome, err := svc.ProcessWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.StatusChanged {
		t.Fatalf("expected a pending to failed transition")
	}

	stored, _ := repo.GetPaymentByTransactionID("CF1700000000000abc123def")
	if stored.Status != models.PaymentStatusFailed {
		t.Fatalf("payment status = %q, want failed", stored.Status)
	}
	if stored.ProviderPaymentID != "CF99" {
		t.Fatalf("provider payment id = %q", stored.ProviderPaymentID)
	}
	if repo.subWrites != 0 {
		t.Fatalf("failed payment must not activate a subscription")
	}
}

func TestProcessWebhookPendingTokenCapturesReferenceOnly(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())

	seedPendingPayment(repo, models.PaymentProviderPayU, "TXN1700000000000abc123def")

	ev, err := ParseWebhook("application/x-www-form-urlencoded",
		[]byte("txnid=TXN1700000000000abc123def&status=in_progress&mihpayid=MIH777"))
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	outcome, err := svc.ProcessWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.StatusChanged || outcome.SubscriptionActivated {
		t.Fatalf("pending token must not change state, outcome = %+v", outcome)
	}

	stored, _ := repo.GetPaymentByTransactionID("TXN1700000000000abc123def")
	if stored.Status != models.PaymentStatusPending {
		t.Fatalf("payment status = %q, want pending", stored.Status)
	}
	if stored.ProviderPaymentID != "MIH777" {
		t.Fatalf("provider reference not captured, got %q", stored.ProviderPaymentID)
	}
}

func TestProcessWebhookHeldLockReportsBusy(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())
	svc.SetLocker(busyLocker{})

	seedPendingPayment(repo, models.PaymentProviderPayU, "TXN1700000000000abc123def")

	ev, err := ParseWebhook("application/x-www-form-urlencoded",
		[]byte("txnid=TXN1700000000000abc123def&status=success"))
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	_, err = svc.ProcessWebhook(context.Background(), ev)
	if !errors.Is(err, ErrWebhookBusy) {
		t.Fatalf("expected ErrWebhookBusy, got %v", err)
	}

	stored, _ := repo.GetPaymentByTransactionID("TXN1700000000000abc123def")
	if stored.Status != models.PaymentStatusPending {
		t.Fatalf("busy delivery must not change status, got %q", stored.Status)
	}
}

func TestProcessWebhookRedeliveryRetriesAfterFailedAttempt(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testPayUConfig())
	svc.SetLocker(busyLocker{})

	seedPendingPayment(repo, models.PaymentProviderPayU, "TXN1700000000000abc123def")

	body := []byte("txnid=TXN1700000000000abc123def&status=success&mihpayid=MIH123")
	ev, err := ParseWebhook("application/x-www-form-urlencoded", body)
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}

	// First delivery loses the lock; the gateway gets a retryable error.
	if _, err := svc.ProcessWebhook(context.Background(), ev); !errors.Is(err, ErrWebhookBusy) {
		t.Fatalf("expected ErrWebhookBusy on first delivery, got %v", err)
	}

	// The identical redelivery must redo the work, not answer as a clean
	// duplicate while the payment is still pending.
	svc.SetLocker(noopLocker{})
	ev, err = ParseWebhook("application/x-www-form-urlencoded", body)
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}
	outcome, err := svc.ProcessWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome.Duplicate {
		t.Fatalf("redelivery after a failed attempt must not short-circuit as duplicate")
	}
	if !outcome.StatusChanged || !outcome.SubscriptionActivated {
		t.Fatalf("outcome = %+v", outcome)
	}

	stored, _ := repo.GetPaymentByTransactionID("TXN1700000000000abc123def")
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("payment status = %q, want completed", stored.Status)
	}
	if repo.subWrites != 1 {
		t.Fatalf("subscription written %d times, want 1", repo.subWrites)
	}
	if len(repo.events) != 1 {
		t.Fatalf("webhook event rows = %d, want 1", len(repo.events))
	}

	// A third delivery now finds a cleanly processed event and collapses.
	ev, err = ParseWebhook("application/x-www-form-urlencoded", body)
	if err != nil {
		t.Fatalf("parsing webhook: %v", err)
	}
	outcome, err = svc.ProcessWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("third delivery failed: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatalf("expected duplicate after clean processing")
	}
	if repo.subWrites != 1 {
		t.Fatalf("duplicate delivery touched the subscription, writes = %d", repo.subWrites)
	}
}

func TestApplyProviderStatusSharedWithReconciler(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testCashfreeConfig("https://sandbox.cashfree.com/pg"))

	seedPendingPayment(repo, models.PaymentProviderCashfree, "CF1700000000000abc123def")

	outcome, err := svc.ApplyProviderStatus(context.Background(), models.PaymentProviderCashfree, "CF1700000000000abc123def", "PAID", "CF42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.StatusChanged || !outcome.SubscriptionActivated {
		t.Fatalf("outcome = %+v", outcome)
	}

	stored, _ := repo.GetPaymentByTransactionID("CF1700000000000abc123def")
	if stored.Status != models.PaymentStatusCompleted || stored.ProviderPaymentID != "CF42" {
		t.Fatalf("payment after poll = %+v", stored)
	}
}
