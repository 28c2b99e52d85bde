package payments

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/marketly-hq/marketly/app/models"
)

// payuWebhookFields is the flat form-encoded shape PayU posts back.
type payuWebhookFields struct {
	TxnID    string
	Status   string
	MihPayID string
}

// gatewayRef is an order reference field that Cashfree serializes
// inconsistently, sometimes as a JSON string and sometimes as a bare number.
// Both decode to their textual form.
type gatewayRef string

func (g *gatewayRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*g = gatewayRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*g = gatewayRef(n.String())
	return nil
}

func (g gatewayRef) String() string { return string(g) }

// cashfreeWebhookPayload is the nested JSON shape Cashfree posts.
type cashfreeWebhookPayload struct {
	Data struct {
		Order struct {
			OrderID     string     `json:"order_id"`
			OrderStatus string     `json:"order_status"`
			CFOrderID   gatewayRef `json:"cf_order_id"`
		} `json:"order"`
	} `json:"data"`
}

// ParseWebhook detects which provider sent a callback purely from the payload
// shape: a flat txnid+status pair is PayU, a nested data.order.order_id is
// Cashfree. The provider does not announce itself in a trusted header, so
// shape detection is the dispatch rule. Returns ErrUnknownWebhookShape when
// neither matches; no record may be touched in that case.
func ParseWebhook(contentType string, body []byte) (*WebhookEvent, error) {
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		return parsePayUWebhook(body)
	}

	var payload cashfreeWebhookPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if orderID := strings.TrimSpace(payload.Data.Order.OrderID); orderID != "" {
			return &WebhookEvent{
				Provider:          models.PaymentProviderCashfree,
				TransactionID:     orderID,
				ProviderStatus:    payload.Data.Order.OrderStatus,
				ProviderPaymentID: payload.Data.Order.CFOrderID.String(),
				RawPayload:        string(body),
			}, nil
		}

		// Some PayU integrations post JSON instead of form data; accept the
		// flat shape either way.
		var flat map[string]interface{}
		if err := json.Unmarshal(body, &flat); err == nil {
			if ev := payuEventFromMap(flat, body); ev != nil {
				return ev, nil
			}
		}
		return nil, ErrUnknownWebhookShape
	}

	return parsePayUWebhook(body)
}

func parsePayUWebhook(body []byte) (*WebhookEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, ErrUnknownWebhookShape
	}

	fields := payuWebhookFields{
		TxnID:    strings.TrimSpace(values.Get("txnid")),
		Status:   strings.TrimSpace(values.Get("status")),
		MihPayID: strings.TrimSpace(values.Get("mihpayid")),
	}
	if fields.TxnID == "" || fields.Status == "" {
		return nil, ErrUnknownWebhookShape
	}

	raw, _ := json.Marshal(map[string]string{
		"txnid":    fields.TxnID,
		"status":   fields.Status,
		"mihpayid": fields.MihPayID,
	})
	return &WebhookEvent{
		Provider:          models.PaymentProviderPayU,
		TransactionID:     fields.TxnID,
		ProviderStatus:    fields.Status,
		ProviderPaymentID: fields.MihPayID,
		RawPayload:        string(raw),
	}, nil
}

func payuEventFromMap(flat map[string]interface{}, body []byte) *WebhookEvent {
	txnid, _ := flat["txnid"].(string)
	status, _ := flat["status"].(string)
	if strings.TrimSpace(txnid) == "" || strings.TrimSpace(status) == "" {
		return nil
	}
	mihpayid, _ := flat["mihpayid"].(string)
	return &WebhookEvent{
		Provider:          models.PaymentProviderPayU,
		TransactionID:     strings.TrimSpace(txnid),
		ProviderStatus:    strings.TrimSpace(status),
		ProviderPaymentID: strings.TrimSpace(mihpayid),
		RawPayload:        string(body),
	}
}
