package models

import "time"

// SubscriptionPlan is the catalog of purchasable plans shown on the pricing
// page. Checkout validates the requested amount against this table.
type SubscriptionPlan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlanID    string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"plan_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Price     int64     `gorm:"not null" json:"price"`
	Currency  string    `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
