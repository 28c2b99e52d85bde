package models

import "time"

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// SubscriptionPeriod is the fixed billing window; there is no proration.
const SubscriptionPeriod = 30 * 24 * time.Hour

// Subscription is the user's current plan entitlement. It is written only by
// webhook reconciliation when a payment completes; the unique user+plan key
// makes redelivered webhooks converge on a single row.
type Subscription struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;index:ux_subscriptions_user_plan,unique,priority:1" json:"user_id"`
	PlanID             string    `gorm:"type:varchar(50);not null;index:ux_subscriptions_user_plan,unique,priority:2" json:"plan_id"`
	PlanName           string    `gorm:"type:varchar(100);not null" json:"plan_name"`
	Status             string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CurrentPeriodStart time.Time `gorm:"type:timestamp" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"type:timestamp;index" json:"current_period_end"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrent reports whether the subscription is active right now.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && now.Before(s.CurrentPeriodEnd)
}
