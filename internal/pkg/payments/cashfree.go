package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marketly-hq/marketly/app/models"
)

// cashfreeAPIVersion is a fixed literal the gateway requires verbatim on
// every call.
const cashfreeAPIVersion = "2023-08-01"

// CashfreeAdapter implements the hosted-checkout flow: order creation is a
// real-time API call and the browser is handed a payment session id.
type CashfreeAdapter struct {
	cfg        Config
	HTTPClient *http.Client
}

func NewCashfreeAdapter(cfg Config) *CashfreeAdapter {
	return &CashfreeAdapter{
		cfg: cfg,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (a *CashfreeAdapter) Provider() string          { return models.PaymentProviderCashfree }
func (a *CashfreeAdapter) TransactionPrefix() string { return CashfreeTransactionPrefix }

func (a *CashfreeAdapter) EnsureConfigured() error {
	if !a.cfg.CashfreeConfigured() {
		return ErrNotConfigured
	}
	return nil
}

type cashfreeCustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type cashfreeOrderMeta struct {
	ReturnURL string `json:"return_url"`
	NotifyURL string `json:"notify_url"`
}

type cashfreeOrderRequest struct {
	OrderID         string                  `json:"order_id"`
	OrderAmount     int64                   `json:"order_amount"`
	OrderCurrency   string                  `json:"order_currency"`
	CustomerDetails cashfreeCustomerDetails `json:"customer_details"`
	OrderMeta       cashfreeOrderMeta       `json:"order_meta"`
}

type cashfreeOrderResponse struct {
	OrderID          string     `json:"order_id"`
	OrderStatus      string     `json:"order_status"`
	CFOrderID        gatewayRef `json:"cf_order_id"`
	PaymentSessionID string     `json:"payment_session_id"`
	OrderToken       string     `json:"order_token"`
}

func (a *CashfreeAdapter) Initiate(ctx context.Context, req OrderRequest) (*InitiationResult, error) {
	if err := a.EnsureConfigured(); err != nil {
		return nil, err
	}

	body := cashfreeOrderRequest{
		OrderID:       req.TransactionID,
		OrderAmount:   req.Amount,
		OrderCurrency: models.PaymentCurrency,
		CustomerDetails: cashfreeCustomerDetails{
			CustomerID:    fmt.Sprintf("user_%d", req.UserID),
			CustomerName:  req.FirstName,
			CustomerEmail: req.Email,
			CustomerPhone: req.Phone,
		},
		OrderMeta: cashfreeOrderMeta{
			ReturnURL: a.cfg.PublicBaseURL + "/payment/success?order_id={order_id}",
			NotifyURL: a.cfg.PublicBaseURL + "/api/payment/webhook",
		},
	}

	out, err := a.doJSON(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.PaymentSessionID) == "" {
		return nil, errors.New("cashfree order response missing payment_session_id")
	}

	return &InitiationResult{
		Provider:         a.Provider(),
		TransactionID:    req.TransactionID,
		PaymentSessionID: out.PaymentSessionID,
		OrderToken:       out.OrderToken,
	}, nil
}

// OrderStatus re-polls an order; used by the background reconciler to recover
// from missed webhooks. Returns the gateway status token and its order ref.
func (a *CashfreeAdapter) OrderStatus(ctx context.Context, orderID string) (status, cfOrderID string, err error) {
	if err := a.EnsureConfigured(); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(orderID) == "" {
		return "", "", errors.New("order id is required")
	}

	out, err := a.doJSON(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return "", "", err
	}
	return out.OrderStatus, out.CFOrderID.String(), nil
}

func (a *CashfreeAdapter) doJSON(ctx context.Context, method, path string, payload interface{}) (*cashfreeOrderResponse, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	url := strings.TrimRight(a.cfg.CashfreeBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-client-id", a.cfg.CashfreeAppID)
	req.Header.Set("x-client-secret", a.cfg.CashfreeSecret)
	req.Header.Set("x-api-version", cashfreeAPIVersion)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   a.Provider(),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var out cashfreeOrderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding cashfree response: %w", err)
	}
	return &out, nil
}

// MapWebhookStatus translates Cashfree's order status tokens. PAID completes
// the payment, EXPIRED and CANCELLED fail it, everything else is still in
// flight and leaves the record pending.
func (a *CashfreeAdapter) MapWebhookStatus(providerStatus string) string {
	switch strings.ToUpper(strings.TrimSpace(providerStatus)) {
	case "PAID":
		return models.PaymentStatusCompleted
	case "EXPIRED", "CANCELLED":
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}
