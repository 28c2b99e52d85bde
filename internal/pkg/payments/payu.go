package payments

import (
	"context"
	"strconv"
	"strings"

	"github.com/marketly-hq/marketly/app/models"
)

// PayUAdapter implements the redirect-form checkout flow. Initiate performs
// no network call: PayU receives the order when the browser posts the signed
// form, so the adapter's whole job is to emit the exact field set the form
// needs, hash included.
type PayUAdapter struct {
	cfg Config
}

func NewPayUAdapter(cfg Config) *PayUAdapter {
	return &PayUAdapter{cfg: cfg}
}

func (a *PayUAdapter) Provider() string          { return models.PaymentProviderPayU }
func (a *PayUAdapter) TransactionPrefix() string { return PayUTransactionPrefix }

func (a *PayUAdapter) EnsureConfigured() error {
	if !a.cfg.PayUConfigured() {
		return ErrNotConfigured
	}
	return nil
}

func (a *PayUAdapter) Initiate(ctx context.Context, req OrderRequest) (*InitiationResult, error) {
	_ = ctx
	if err := a.EnsureConfigured(); err != nil {
		return nil, err
	}

	amount := strconv.FormatInt(req.Amount, 10)
	hash := SignPayURequest(a.cfg.PayUKey, req.TransactionID, amount, req.PlanName, req.FirstName, req.Email, a.cfg.PayUSalt)

	// Field names are PayU's documented contract; every one of them must be
	// present in the redirect form or the gateway rejects the post.
	fields := map[string]string{
		"key":         a.cfg.PayUKey,
		"txnid":       req.TransactionID,
		"amount":      amount,
		"productinfo": req.PlanName,
		"firstname":   req.FirstName,
		"email":       req.Email,
		"phone":       req.Phone,
		"surl":        a.cfg.PublicBaseURL + "/payment/success",
		"furl":        a.cfg.PublicBaseURL + "/payment/failure",
		"hash":        hash,
	}

	return &InitiationResult{
		Provider:      a.Provider(),
		TransactionID: req.TransactionID,
		Redirect: &RedirectForm{
			URL:    a.cfg.PayUURL,
			Fields: fields,
		},
	}, nil
}

// MapWebhookStatus translates PayU's status tokens. Anything that is neither
// the success nor the failure token leaves the record pending.
func (a *PayUAdapter) MapWebhookStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "success":
		return models.PaymentStatusCompleted
	case "failure":
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}
