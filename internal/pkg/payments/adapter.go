package payments

import "context"

// ProviderAdapter is the capability each gateway integration implements.
// Initiate builds (and for hosted-checkout providers, performs) the
// order-creation call; MapWebhookStatus translates the provider's status
// vocabulary into the internal payment state machine.
type ProviderAdapter interface {
	Provider() string
	TransactionPrefix() string

	// EnsureConfigured fails with ErrNotConfigured when credentials are
	// missing. The initiation service calls it before creating any record.
	EnsureConfigured() error

	Initiate(ctx context.Context, req OrderRequest) (*InitiationResult, error)

	MapWebhookStatus(providerStatus string) string
}
