package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means provider credentials are missing. Initiation
	// fails before any record is created.
	ErrNotConfigured = errors.New("payment provider is not configured")

	// ErrValidation covers bad checkout input (amount, plan, user).
	ErrValidation = errors.New("invalid order request")

	// ErrPaymentNotFound means a webhook referenced a transaction id with no
	// matching payment record. The handler answers non-2xx so the provider
	// retries delivery.
	ErrPaymentNotFound = errors.New("no payment record for transaction id")

	// ErrUnknownWebhookShape means the payload matched neither provider.
	ErrUnknownWebhookShape = errors.New("unrecognized webhook payload shape")

	// ErrWebhookBusy means another delivery for the same transaction id is
	// being processed right now; the provider should redeliver.
	ErrWebhookBusy = errors.New("webhook for transaction id already in flight")
)

// ProviderError is a typed rejection from a gateway order-creation call.
// The already-created payment record stays pending when this is returned.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s rejected order: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}
