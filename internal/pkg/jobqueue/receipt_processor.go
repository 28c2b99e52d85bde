package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/marketly-hq/marketly/app/models"
	"github.com/marketly-hq/marketly/internal/pkg/database"
	"github.com/marketly-hq/marketly/internal/pkg/mail"
)

// processReceiptEmailJob sends the receipt for a completed payment. Mail is
// best-effort and the payment record is the source of truth, so a record that
// is not completed (yet) fails the job and relies on the retry cycle.
func (q *Queue) processReceiptEmailJob(job *Job) error {
	payload, err := ReceiptEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid receipt email payload: %w", err)
	}
	if payload.Email == "" || payload.TransactionID == "" {
		return fmt.Errorf("receipt email payload missing email or transaction id")
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var payment models.Payment
	if err := db.Where("transaction_id = ?", payload.TransactionID).First(&payment).Error; err != nil {
		return fmt.Errorf("payment %s not found: %w", payload.TransactionID, err)
	}
	if payment.Status != models.PaymentStatusCompleted {
		return fmt.Errorf("payment %s is %s, receipt not due", payload.TransactionID, payment.Status)
	}

	if err := mail.SendPaymentReceipt(payload.Email, payload.Name, &payment); err != nil {
		return fmt.Errorf("sending receipt for %s: %w", payload.TransactionID, err)
	}

	log.Infof("[Receipt] Sent receipt for %s to %s", payload.TransactionID, payload.Email)
	return nil
}
