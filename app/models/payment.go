package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderPayU     = "payu"
	PaymentProviderCashfree = "cashfree"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// PaymentCurrency is the only currency the checkout supports.
const PaymentCurrency = "INR"

// Payment is the durable record of one checkout attempt. TransactionID is
// generated locally before the provider is ever contacted and is the join key
// for webhook reconciliation.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index" json:"user_id"`
	PlanID            string    `gorm:"type:varchar(50);not null" json:"plan_id"`
	PlanName          string    `gorm:"type:varchar(100);not null" json:"plan_name"`
	Amount            int64     `gorm:"not null" json:"amount"`
	Currency          string    `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Provider          string    `gorm:"type:varchar(20);not null;index" json:"provider"`
	TransactionID     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"transaction_id"`
	ProviderPaymentID string    `gorm:"type:varchar(191);default:''" json:"provider_payment_id"`
	Status            string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// CanTransitionTo enforces the forward-only state machine: pending may move
// to completed or failed, terminal states never move again.
func (p *Payment) CanTransitionTo(status string) bool {
	if p.Status == status {
		return false
	}
	switch p.Status {
	case PaymentStatusPending:
		return status == PaymentStatusCompleted || status == PaymentStatusFailed
	default:
		return false
	}
}
