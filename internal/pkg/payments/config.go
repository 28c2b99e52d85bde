package payments

import (
	"strings"

	"github.com/marketly-hq/marketly/internal/pkg/env"
)

const (
	defaultPayUPaymentURL     = "https://secure.payu.in/_payment"
	defaultPayUTestPaymentURL = "https://test.payu.in/_payment"
	defaultCashfreeAPIBaseURL = "https://api.cashfree.com/pg"
	sandboxCashfreeAPIBaseURL = "https://sandbox.cashfree.com/pg"
)

// Config carries all provider credentials and endpoints. It is built once at
// process start and injected into the adapters; business logic never reads
// the environment directly, and secrets never leave the server process.
type Config struct {
	PayUKey  string
	PayUSalt string
	PayUURL  string

	CashfreeAppID   string
	CashfreeSecret  string
	CashfreeBaseURL string

	// PublicBaseURL is the externally reachable origin of this deployment,
	// used to build success/failure/notify callback URLs.
	PublicBaseURL string
}

// NewConfigFromEnv builds the payment configuration from the process
// environment. Production endpoints are the default; PAYMENTS_ENV=test
// switches both gateways to their sandboxes.
func NewConfigFromEnv() Config {
	cfg := Config{
		PayUKey:         strings.TrimSpace(env.GetEnv("PAYU_KEY", "")),
		PayUSalt:        strings.TrimSpace(env.GetEnv("PAYU_SALT", "")),
		PayUURL:         strings.TrimSpace(env.GetEnv("PAYU_PAYMENT_URL", "")),
		CashfreeAppID:   strings.TrimSpace(env.GetEnv("CASHFREE_APP_ID", "")),
		CashfreeSecret:  strings.TrimSpace(env.GetEnv("CASHFREE_SECRET", "")),
		CashfreeBaseURL: strings.TrimSpace(env.GetEnv("CASHFREE_API_BASE_URL", "")),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
	}

	sandbox := env.GetEnv("PAYMENTS_ENV", "production") != "production"
	if cfg.PayUURL == "" {
		if sandbox {
			cfg.PayUURL = defaultPayUTestPaymentURL
		} else {
			cfg.PayUURL = defaultPayUPaymentURL
		}
	}
	if cfg.CashfreeBaseURL == "" {
		if sandbox {
			cfg.CashfreeBaseURL = sandboxCashfreeAPIBaseURL
		} else {
			cfg.CashfreeBaseURL = defaultCashfreeAPIBaseURL
		}
	}
	return cfg
}

// PayUConfigured reports whether the PayU credentials are present.
func (c Config) PayUConfigured() bool {
	return c.PayUKey != "" && c.PayUSalt != ""
}

// CashfreeConfigured reports whether the Cashfree credentials are present.
func (c Config) CashfreeConfigured() bool {
	return c.CashfreeAppID != "" && c.CashfreeSecret != ""
}
