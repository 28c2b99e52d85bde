package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/marketly-hq/marketly/app/models"
	"github.com/marketly-hq/marketly/internal/pkg/database"
	"github.com/marketly-hq/marketly/internal/pkg/jobqueue"
	metrics "github.com/marketly-hq/marketly/internal/pkg/metrics/counter"
	"github.com/marketly-hq/marketly/internal/pkg/payments"
	"github.com/marketly-hq/marketly/internal/pkg/usercontext"
)

type checkoutRequest struct {
	PlanID    string `json:"plan_id"`
	PlanName  string `json:"plan_name"`
	Amount    int64  `json:"amount"`
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
}

// HandleCheckoutPayU starts a PayU redirect-form checkout.
func HandleCheckoutPayU(c *fiber.Ctx) error {
	return handleCheckout(c, models.PaymentProviderPayU)
}

// HandleCheckoutCashfree starts a Cashfree hosted-session checkout.
func HandleCheckoutCashfree(c *fiber.Ctx) error {
	return handleCheckout(c, models.PaymentProviderCashfree)
}

func handleCheckout(c *fiber.Ctx, provider string) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		firstName = userCtx.Username
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = userCtx.Phone
	}

	svc := paymentService()
	result, payment, err := svc.InitiateOrder(c.Context(), provider, payments.OrderRequest{
		UserID:    userCtx.UserID,
		PlanID:    strings.TrimSpace(req.PlanID),
		PlanName:  strings.TrimSpace(req.PlanName),
		Amount:    req.Amount,
		FirstName: firstName,
		Email:     userCtx.Email,
		Phone:     phone,
	})
	if err != nil {
		return checkoutError(c, provider, payment, err)
	}

	_ = metrics.AddInitiated(provider)

	resp := fiber.Map{
		"provider":       result.Provider,
		"transaction_id": result.TransactionID,
		"status":         models.PaymentStatusPending,
	}
	if result.Redirect != nil {
		resp["redirect"] = fiber.Map{
			"url":    result.Redirect.URL,
			"fields": result.Redirect.Fields,
		}
	}
	if result.PaymentSessionID != "" {
		resp["payment_session_id"] = result.PaymentSessionID
	}
	if result.OrderToken != "" {
		resp["order_token"] = result.OrderToken
	}
	return c.JSON(resp)
}

func checkoutError(c *fiber.Ctx, provider string, payment *models.Payment, err error) error {
	var provErr *payments.ProviderError
	switch {
	case errors.Is(err, payments.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, payments.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "provider_not_configured", "message": "Payment provider is not configured"})
	case errors.As(err, &provErr):
		log.Errorf("[Payments] %s rejected order: %v", provider, provErr)
		resp := fiber.Map{"error": "provider_rejected", "message": "Payment provider rejected the order"}
		if payment != nil {
			resp["transaction_id"] = payment.TransactionID
		}
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	default:
		log.Errorf("[Payments] checkout via %s failed: %v", provider, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to initiate payment"})
	}
}

// HandlePaymentWebhook is the single inbound callback endpoint for both
// gateways. The provider is detected from the payload shape, never from a
// caller-supplied tag. Non-2xx answers make the gateway redeliver.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	contentType := c.Get(fiber.HeaderContentType)

	ev, err := payments.ParseWebhook(contentType, rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_webhook_shape"})
	}

	_ = metrics.AddWebhookReceived(ev.Provider)

	svc := paymentService()
	outcome, err := svc.ProcessWebhook(c.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrPaymentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
		case errors.Is(err, payments.ErrWebhookBusy):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "processing_in_progress"})
		case errors.Is(err, payments.ErrUnknownWebhookShape):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_webhook_shape"})
		default:
			log.Errorf("[Payments] webhook for %s failed: %v", ev.TransactionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
		}
	}

	if outcome.Duplicate {
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if outcome.StatusChanged {
		switch outcome.Payment.Status {
		case models.PaymentStatusCompleted:
			_ = metrics.AddCompleted(ev.Provider)
		case models.PaymentStatusFailed:
			_ = metrics.AddFailed(ev.Provider)
		}
	}
	if outcome.SubscriptionActivated {
		enqueueReceiptEmail(outcome.Payment)
	}

	return c.JSON(fiber.Map{
		"ok":     true,
		"status": outcome.Payment.Status,
	})
}

// enqueueReceiptEmail schedules the receipt best-effort; mail never blocks or
// fails the webhook answer.
func enqueueReceiptEmail(payment *models.Payment) {
	var user models.User
	if err := database.GetDB().First(&user, payment.UserID).Error; err != nil {
		log.Warnf("[Payments] No user %d for receipt on %s: %v", payment.UserID, payment.TransactionID, err)
		return
	}
	payload := jobqueue.ReceiptEmailJobPayload{
		TransactionID: payment.TransactionID,
		Email:         user.Email,
		Name:          user.Name,
	}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeReceiptEmail, payload.ToMap()); err != nil {
		log.Errorf("[Payments] Failed to enqueue receipt for %s: %v", payment.TransactionID, err)
	}
}

// HandleListPlans returns the purchasable plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := paymentService().ListPlans()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleListPayments returns the caller's payment history, newest first.
func HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	list, err := paymentService().PaymentsForUser(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payments"})
	}
	return c.JSON(fiber.Map{"payments": list})
}

// HandleGetSubscription returns the caller's current subscription.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	sub, err := paymentService().CurrentSubscription(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"subscription": nil})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	return c.JSON(fiber.Map{
		"subscription": sub,
		"is_current":   sub.IsCurrent(time.Now()),
	})
}

// HandlePaymentSuccess is the browser return page after a gateway checkout.
// The webhook is the source of truth; this only reflects the current record.
func HandlePaymentSuccess(c *fiber.Ctx) error {
	return paymentReturnPage(c, true)
}

// HandlePaymentFailure is the browser return page after a cancelled or
// failed gateway checkout.
func HandlePaymentFailure(c *fiber.Ctx) error {
	return paymentReturnPage(c, false)
}

func paymentReturnPage(c *fiber.Ctx, success bool) error {
	resp := fiber.Map{"ok": success}

	// Cashfree appends ?order_id=..., PayU posts txnid in the form body.
	txnID := strings.TrimSpace(c.Query("order_id"))
	if txnID == "" {
		txnID = strings.TrimSpace(c.FormValue("txnid"))
	}
	if txnID != "" {
		resp["transaction_id"] = txnID
		if p, err := paymentService().PaymentByTransactionID(txnID); err == nil {
			resp["status"] = p.Status
		}
	}
	if !success {
		resp["message"] = "Payment was not completed. You have not been charged once the gateway confirms the failure."
	}
	return c.JSON(resp)
}
