package payments

// Transaction id prefixes; the prefix namespaces the id per provider so a
// webhook can never be reconciled against the wrong gateway's record.
const (
	PayUTransactionPrefix     = "TXN"
	CashfreeTransactionPrefix = "CF"
)

// OrderRequest is the provider-neutral checkout input. TransactionID is
// filled in by the initiation service before the adapter is invoked.
type OrderRequest struct {
	UserID        uint
	PlanID        string
	PlanName      string
	Amount        int64
	FirstName     string
	Email         string
	Phone         string
	TransactionID string
}

// RedirectForm carries every field a browser form post to the gateway needs,
// verbatim and complete. The UI layer submits it as-is.
type RedirectForm struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// InitiationResult is the normalized adapter output. PayU fills Redirect;
// Cashfree fills PaymentSessionID/OrderToken for its hosted checkout.
type InitiationResult struct {
	Provider         string        `json:"provider"`
	TransactionID    string        `json:"transaction_id"`
	Redirect         *RedirectForm `json:"redirect,omitempty"`
	PaymentSessionID string        `json:"payment_session_id,omitempty"`
	OrderToken       string        `json:"order_token,omitempty"`
}

// WebhookEvent is the normalized form of an inbound provider callback after
// shape detection.
type WebhookEvent struct {
	Provider          string
	TransactionID     string
	ProviderStatus    string
	ProviderPaymentID string
	RawPayload        string
}
