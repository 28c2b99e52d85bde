package payments

import (
	"time"

	"github.com/marketly-hq/marketly/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment services.
type Repository interface {
	CreatePayment(p *models.Payment) error
	GetPaymentByTransactionID(transactionID string) (*models.Payment, error)

	// CompletePendingPayment applies a terminal status with a conditional
	// update guarded on status=pending, so concurrent duplicate webhooks
	// cannot double-apply or regress a terminal record. Reports whether the
	// row actually transitioned.
	CompletePendingPayment(transactionID, newStatus, providerPaymentID string) (bool, error)

	// SetProviderPaymentID overwrites the informational provider reference.
	SetProviderPaymentID(transactionID, providerPaymentID string) error

	ListPaymentsByUser(userID uint) ([]models.Payment, error)
	ListRecentPayments(limit int, status, provider string) ([]models.Payment, error)
	ListStalePendingPayments(provider string, olderThan time.Time, limit int) ([]models.Payment, error)

	UpsertSubscription(sub *models.Subscription) error
	GetCurrentSubscription(userID uint) (*models.Subscription, error)

	GetActivePlan(planID string) (*models.SubscriptionPlan, error)
	ListActivePlans() ([]models.SubscriptionPlan, error)

	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPaymentByTransactionID(transactionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CompletePendingPayment(transactionID, newStatus, providerPaymentID string) (bool, error) {
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": time.Now(),
	}
	if providerPaymentID != "" {
		updates["provider_payment_id"] = providerPaymentID
	}

	tx := r.db.Model(&models.Payment{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.PaymentStatusPending).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) SetProviderPaymentID(transactionID, providerPaymentID string) error {
	return r.db.Model(&models.Payment{}).
		Where("transaction_id = ?", transactionID).
		Update("provider_payment_id", providerPaymentID).Error
}

func (r *gormRepository) ListPaymentsByUser(userID uint) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (r *gormRepository) ListRecentPayments(limit int, status, provider string) ([]models.Payment, error) {
	q := r.db.Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var out []models.Payment
	err := q.Find(&out).Error
	return out, err
}

func (r *gormRepository) ListStalePendingPayments(provider string, olderThan time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.
		Where("provider = ? AND status = ? AND created_at < ?", provider, models.PaymentStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "plan_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_name",
			"status",
			"current_period_start",
			"current_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ? AND plan_id = ?", sub.UserID, sub.PlanID).
		First(sub).Error
}

func (r *gormRepository) GetCurrentSubscription(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetActivePlan(planID string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("plan_id = ? AND is_active = ?", planID, true).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("is_active = ?", true).Order("price ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
