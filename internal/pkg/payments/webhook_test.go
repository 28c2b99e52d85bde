package payments

import (
	"errors"
	"testing"

	"github.com/marketly-hq/marketly/app/models"
)

func TestParseWebhookDispatchesPayUForm(t *testing.T) {
	body := []byte("txnid=TXN1700000000000abc123def&status=success&mihpayid=MIH123&mode=UPI")

	ev, err := ParseWebhook("application/x-www-form-urlencoded", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Provider != models.PaymentProviderPayU {
		t.Fatalf("provider = %q", ev.Provider)
	}
	if ev.TransactionID != "TXN1700000000000abc123def" {
		t.Fatalf("transaction id = %q", ev.TransactionID)
	}
	if ev.ProviderStatus != "success" {
		t.Fatalf("provider status = %q", ev.ProviderStatus)
	}
	if ev.ProviderPaymentID != "MIH123" {
		t.Fatalf("provider payment id = %q", ev.ProviderPaymentID)
	}
}

func TestParseWebhookDispatchesCashfreeJSON(t *testing.T) {
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":{"order_id":"CF1700000000000abc123def","order_status":"PAID","cf_order_id":"CF99"}}}`)

	ev, err := ParseWebhook("application/json", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Provider != models.PaymentProviderCashfree {
		t.Fatalf("provider = %q", ev.Provider)
	}
	if ev.TransactionID != "CF1700000000000abc123def" {
		t.Fatalf("transaction id = %q", ev.TransactionID)
	}
	if ev.ProviderStatus != "PAID" {
		t.Fatalf("provider status = %q", ev.ProviderStatus)
	}
	if ev.ProviderPaymentID != "CF99" {
		t.Fatalf("provider payment id = %q", ev.ProviderPaymentID)
	}
}

func TestParseWebhookAcceptsNumericCashfreeOrderID(t *testing.T) {
	// Cashfree is not consistent about cf_order_id; a bare number must parse
	// just like the quoted form.
	body := []byte(`{"data":{"order":{"order_id":"CF1700000000000abc123def","order_status":"PAID","cf_order_id":4204200042}}}`)

	ev, err := ParseWebhook("application/json", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ProviderPaymentID != "4204200042" {
		t.Fatalf("provider payment id = %q", ev.ProviderPaymentID)
	}
}

func TestParseWebhookAcceptsFlatPayUJSON(t *testing.T) {
	body := []byte(`{"txnid":"TXN1700000000000abc123def","status":"failure","mihpayid":"MIH456"}`)

	ev, err := ParseWebhook("application/json", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Provider != models.PaymentProviderPayU {
		t.Fatalf("provider = %q", ev.Provider)
	}
	if ev.ProviderStatus != "failure" {
		t.Fatalf("provider status = %q", ev.ProviderStatus)
	}
	if ev.ProviderPaymentID != "MIH456" {
		t.Fatalf("provider payment id = %q", ev.ProviderPaymentID)
	}
}

func TestParseWebhookRejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "empty json object", contentType: "application/json", body: `{}`},
		{name: "json without order id", contentType: "application/json", body: `{"data":{"order":{"order_status":"PAID"}}}`},
		{name: "json missing status", contentType: "application/json", body: `{"txnid":"TXN1"}`},
		{name: "form missing txnid", contentType: "application/x-www-form-urlencoded", body: "status=success"},
		{name: "form missing status", contentType: "application/x-www-form-urlencoded", body: "txnid=TXN1"},
		{name: "garbage", contentType: "text/plain", body: "%%%not-a-payload;;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWebhook(tt.contentType, []byte(tt.body))
			if !errors.Is(err, ErrUnknownWebhookShape) {
				t.Fatalf("expected ErrUnknownWebhookShape, got %v", err)
			}
		})
	}
}
