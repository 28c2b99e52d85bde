package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marketly-hq/marketly/app/models"
	"github.com/marketly-hq/marketly/internal/pkg/cache"
	"gorm.io/gorm"
)

// webhookLockTTL bounds how long a crashed handler can hold a per-transaction
// lock before redelivery succeeds again.
const webhookLockTTL = 30 * time.Second

// Locker serializes webhook processing per transaction id so concurrent
// duplicate deliveries cannot race the read-modify-write.
type Locker interface {
	Acquire(key string, ttl time.Duration) (bool, error)
	Release(key string) error
}

type cacheLocker struct{}

func (cacheLocker) Acquire(key string, ttl time.Duration) (bool, error) {
	return cache.AcquireLock(key, ttl)
}

func (cacheLocker) Release(key string) error {
	return cache.ReleaseLock(key)
}

// Service orchestrates order initiation and webhook reconciliation across
// both provider adapters.
type Service struct {
	repo     Repository
	adapters map[string]ProviderAdapter
	locker   Locker
	now      func() time.Time
}

// NewService creates the payment service with both gateway adapters built
// from the given config.
func NewService(repo Repository, cfg Config) *Service {
	s := &Service{
		repo:     repo,
		adapters: make(map[string]ProviderAdapter),
		locker:   cacheLocker{},
		now:      time.Now,
	}
	s.register(NewPayUAdapter(cfg))
	s.register(NewCashfreeAdapter(cfg))
	return s
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg Config) *Service {
	return NewService(NewRepository(db), cfg)
}

func (s *Service) register(a ProviderAdapter) {
	s.adapters[a.Provider()] = a
}

// Adapter returns the adapter registered for a provider, or nil.
func (s *Service) Adapter(provider string) ProviderAdapter {
	return s.adapters[strings.ToLower(strings.TrimSpace(provider))]
}

// SetLocker overrides the webhook locker; used by tests.
func (s *Service) SetLocker(l Locker) { s.locker = l }

// SetClock overrides the time source; used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// InitiateOrder runs one checkout attempt: validate, generate the
// transaction id, persist the pending payment, then hand off to the provider
// adapter. The pending record is written before the provider is contacted so
// a webhook can always find something to reconcile against. Adapter failures
// after that point deliberately leave the record pending: a local error does
// not prove the user never reached the gateway.
func (s *Service) InitiateOrder(ctx context.Context, provider string, req OrderRequest) (*InitiationResult, *models.Payment, error) {
	adapter := s.Adapter(provider)
	if adapter == nil {
		return nil, nil, fmt.Errorf("%w: unknown provider %q", ErrValidation, provider)
	}
	if err := adapter.EnsureConfigured(); err != nil {
		return nil, nil, err
	}
	if err := validateOrderRequest(req); err != nil {
		return nil, nil, err
	}
	if plan, err := s.repo.GetActivePlan(req.PlanID); err == nil {
		if plan.Price != req.Amount {
			return nil, nil, fmt.Errorf("%w: amount %d does not match plan %s price %d", ErrValidation, req.Amount, req.PlanID, plan.Price)
		}
		if req.PlanName == "" {
			req.PlanName = plan.Name
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("looking up plan %s: %w", req.PlanID, err)
	}

	req.TransactionID = NewTransactionID(adapter.TransactionPrefix())

	payment := &models.Payment{
		UserID:        req.UserID,
		PlanID:        req.PlanID,
		PlanName:      req.PlanName,
		Amount:        req.Amount,
		Currency:      models.PaymentCurrency,
		Provider:      adapter.Provider(),
		TransactionID: req.TransactionID,
		Status:        models.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		// Nothing was sent to the provider yet, so there is nothing to clean up.
		return nil, nil, fmt.Errorf("creating payment record: %w", err)
	}

	result, err := adapter.Initiate(ctx, req)
	if err != nil {
		// The record stays pending on purpose; only a webhook (or the
		// reconciler) may decide the real outcome.
		return nil, payment, fmt.Errorf("payment initialization failed: %w", err)
	}

	return result, payment, nil
}

func validateOrderRequest(req OrderRequest) error {
	if req.UserID == 0 {
		return fmt.Errorf("%w: user identity is required", ErrValidation)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(req.PlanID) == "" {
		return fmt.Errorf("%w: plan id is required", ErrValidation)
	}
	return nil
}

// ReconcileOutcome reports what a webhook (or reconciler poll) actually did.
type ReconcileOutcome struct {
	Payment               *models.Payment
	Duplicate             bool
	StatusChanged         bool
	SubscriptionActivated bool
}

// ProcessWebhook applies one provider callback end to end: record the raw
// event idempotently, serialize per transaction id, then run the monotonic
// status update. All errors are terminal for this delivery; the HTTP layer
// maps them to non-2xx codes so the provider retries.
func (s *Service) ProcessWebhook(ctx context.Context, ev *WebhookEvent) (*ReconcileOutcome, error) {
	if ev == nil {
		return nil, ErrUnknownWebhookShape
	}

	created, stored, err := s.recordWebhookEvent(ev)
	if err != nil {
		return nil, fmt.Errorf("persisting webhook event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		// Byte-identical redelivery of an event that already processed
		// cleanly; answer from the stored record without reprocessing.
		payment, err := s.repo.GetPaymentByTransactionID(ev.TransactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrPaymentNotFound
			}
			return nil, fmt.Errorf("loading payment for duplicate webhook: %w", err)
		}
		return &ReconcileOutcome{Payment: payment, Duplicate: true}, nil
	}

	// Either a first delivery, or a redelivery whose previous attempt never
	// finished cleanly (lock contention, storage error, or still in flight).
	// The retry owns the work; the per-transaction lock below keeps it from
	// racing an attempt that is still running.
	outcome, err := s.applyStatus(ctx, ev.Provider, ev.TransactionID, ev.ProviderStatus, ev.ProviderPaymentID)
	s.markProcessed(stored.ID, err)
	return outcome, err
}

// ApplyProviderStatus is the reconciliation entry point shared by the
// webhook path and the background poller.
func (s *Service) ApplyProviderStatus(ctx context.Context, provider, transactionID, providerStatus, providerPaymentID string) (*ReconcileOutcome, error) {
	return s.applyStatus(ctx, provider, transactionID, providerStatus, providerPaymentID)
}

func (s *Service) applyStatus(ctx context.Context, provider, transactionID, providerStatus, providerPaymentID string) (*ReconcileOutcome, error) {
	_ = ctx
	adapter := s.Adapter(provider)
	if adapter == nil {
		return nil, ErrUnknownWebhookShape
	}

	if s.locker != nil {
		ok, err := s.locker.Acquire("payment:txn:"+transactionID, webhookLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring transaction lock: %w", err)
		}
		if !ok {
			return nil, ErrWebhookBusy
		}
		defer func() { _ = s.locker.Release("payment:txn:" + transactionID) }()
	}

	payment, err := s.repo.GetPaymentByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("resolving payment %s: %w", transactionID, err)
	}

	newStatus := adapter.MapWebhookStatus(providerStatus)
	outcome := &ReconcileOutcome{Payment: payment}

	if !payment.CanTransitionTo(newStatus) {
		// Terminal records never regress, and a still-pending token carries
		// no state change. The provider reference is informational and is
		// still captured when the payload carries one.
		if providerPaymentID != "" && providerPaymentID != payment.ProviderPaymentID {
			if err := s.repo.SetProviderPaymentID(transactionID, providerPaymentID); err != nil {
				return nil, fmt.Errorf("updating provider reference: %w", err)
			}
			payment.ProviderPaymentID = providerPaymentID
		}
		return outcome, nil
	}

	changed, err := s.repo.CompletePendingPayment(transactionID, newStatus, providerPaymentID)
	if err != nil {
		return nil, fmt.Errorf("updating payment %s: %w", transactionID, err)
	}
	if !changed {
		// Lost the race against another delivery; re-read for the caller.
		payment, err = s.repo.GetPaymentByTransactionID(transactionID)
		if err != nil {
			return nil, fmt.Errorf("re-reading payment %s: %w", transactionID, err)
		}
		outcome.Payment = payment
		return outcome, nil
	}

	payment.Status = newStatus
	if providerPaymentID != "" {
		payment.ProviderPaymentID = providerPaymentID
	}
	outcome.StatusChanged = true

	if newStatus == models.PaymentStatusCompleted {
		if err := s.activateSubscription(payment); err != nil {
			return nil, err
		}
		outcome.SubscriptionActivated = true
	}

	return outcome, nil
}

// activateSubscription upserts the user's plan entitlement with a fresh
// 30-day window. Keyed on user+plan, so webhook redelivery converges on a
// single row; re-extending the window on redelivery is tolerated.
func (s *Service) activateSubscription(payment *models.Payment) error {
	start := s.now()
	sub := &models.Subscription{
		UserID:             payment.UserID,
		PlanID:             payment.PlanID,
		PlanName:           payment.PlanName,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.Add(models.SubscriptionPeriod),
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("activating subscription for user %d: %w", payment.UserID, err)
	}
	return nil
}

func (s *Service) recordWebhookEvent(ev *WebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	// Neither gateway sends a usable event id, so the payload hash is the
	// dedup key; byte-identical redeliveries collapse onto one row.
	sum := sha256.Sum256([]byte(ev.RawPayload))
	event := &models.PaymentWebhookEvent{
		Provider:        ev.Provider,
		ProviderEventID: "hash:" + hex.EncodeToString(sum[:]),
		TransactionID:   ev.TransactionID,
		PayloadJSON:     ev.RawPayload,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

func (s *Service) markProcessed(eventID uint, processingErr error) {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	_ = s.repo.MarkWebhookProcessed(eventID, errMsg)
}

// ListPlans returns the purchasable plan catalog.
func (s *Service) ListPlans() ([]models.SubscriptionPlan, error) {
	return s.repo.ListActivePlans()
}

// PaymentByTransactionID looks up a single payment record.
func (s *Service) PaymentByTransactionID(transactionID string) (*models.Payment, error) {
	return s.repo.GetPaymentByTransactionID(transactionID)
}

// PaymentsForUser returns the caller's payment history, newest first.
func (s *Service) PaymentsForUser(userID uint) ([]models.Payment, error) {
	return s.repo.ListPaymentsByUser(userID)
}

// CurrentSubscription returns the most recently written subscription for a
// user (most recent write wins for "current plan" reads).
func (s *Service) CurrentSubscription(userID uint) (*models.Subscription, error) {
	return s.repo.GetCurrentSubscription(userID)
}

// RecentPayments returns recent payments for the admin console.
func (s *Service) RecentPayments(limit int, status, provider string) ([]models.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListRecentPayments(limit, status, provider)
}

// StalePendingPayments lists pending payments older than the given age for
// the background reconciler.
func (s *Service) StalePendingPayments(provider string, age time.Duration, limit int) ([]models.Payment, error) {
	return s.repo.ListStalePendingPayments(provider, s.now().Add(-age), limit)
}
