package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/marketly-hq/marketly/app/models"
	"github.com/marketly-hq/marketly/internal/pkg/database"
	metrics "github.com/marketly-hq/marketly/internal/pkg/metrics/counter"
	"github.com/marketly-hq/marketly/internal/pkg/payments"
)

var paymentService *payments.Service

// SetPaymentService overrides the payment service used by processors; used by
// tests and by the bootstrap so processors share the request-path service.
func SetPaymentService(svc *payments.Service) {
	paymentService = svc
}

func getPaymentService() *payments.Service {
	if paymentService == nil {
		paymentService = payments.NewServiceFromDB(database.GetDB(), payments.NewConfigFromEnv())
	}
	return paymentService
}

// processPaymentReconcileJob re-polls one pending order at the gateway and
// applies the answer through the same monotonic update path webhooks use.
// Only Cashfree exposes an order-status API; stale PayU orders are surfaced
// by the manager sweep for manual review instead.
func (q *Queue) processPaymentReconcileJob(ctx context.Context, job *Job) error {
	payload, err := PaymentReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payment reconcile payload: %w", err)
	}
	if payload.TransactionID == "" {
		return fmt.Errorf("payment reconcile payload missing transaction id")
	}
	if payload.Provider != models.PaymentProviderCashfree {
		log.Warnf("[Reconcile] No status API for provider %s, skipping %s", payload.Provider, payload.TransactionID)
		return nil
	}

	svc := getPaymentService()
	adapter, ok := svc.Adapter(payload.Provider).(*payments.CashfreeAdapter)
	if !ok {
		return fmt.Errorf("cashfree adapter not registered")
	}

	status, providerRef, err := adapter.OrderStatus(ctx, payload.TransactionID)
	if err != nil {
		return fmt.Errorf("polling order %s: %w", payload.TransactionID, err)
	}

	outcome, err := svc.ApplyProviderStatus(ctx, payload.Provider, payload.TransactionID, status, providerRef)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			log.Warnf("[Reconcile] Order %s has no local payment record", payload.TransactionID)
			return nil
		}
		return fmt.Errorf("applying polled status for %s: %w", payload.TransactionID, err)
	}

	if outcome.StatusChanged {
		log.Infof("[Reconcile] Payment %s resolved to %s via poll", payload.TransactionID, outcome.Payment.Status)
		switch outcome.Payment.Status {
		case models.PaymentStatusCompleted:
			_ = metrics.AddCompleted(payload.Provider)
		case models.PaymentStatusFailed:
			_ = metrics.AddFailed(payload.Provider)
		}
	} else {
		log.Debugf("[Reconcile] Payment %s still %s at gateway", payload.TransactionID, status)
	}
	return nil
}
