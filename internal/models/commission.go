package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionStatus represents the lifecycle state of a commission
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// Commission is the amount owed to an affiliate for one billable conversion event.
// SubscriptionEventID is unique across all statuses.
type Commission struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AffiliateCode        string           `gorm:"type:varchar(32);not null;index:idx_commissions_code_status,priority:1" json:"affiliate_code"`
	UserID               uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	SubscriptionEventID  string           `gorm:"type:varchar(191);not null;uniqueIndex" json:"subscription_event_id"`
	GrossAmount          decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"gross_amount"`
	CommissionPercentage decimal.Decimal  `gorm:"type:decimal(5,2);not null" json:"commission_percentage"`
	CommissionAmount     decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"commission_amount"`
	Status               CommissionStatus `gorm:"type:varchar(20);not null;index:idx_commissions_code_status,priority:2" json:"status"`
	CreatedAt            time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	PaidAt               *time.Time       `json:"paid_at"`
	CancelledAt          *time.Time       `json:"cancelled_at"`
	PayoutBatchID        *uuid.UUID       `gorm:"type:uuid;index" json:"payout_batch_id,omitempty"`
	PayoutReference      string           `gorm:"type:varchar(191)" json:"payout_reference,omitempty"`
}

// BeforeCreate assigns the row id
func (c *Commission) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsPending reports whether the commission can still be paid or cancelled
func (c *Commission) IsPending() bool {
	return c.Status == CommissionStatusPending
}

// PayoutBatch records one operator payment run. The reference is unique so a
// retried settlement lands on the same batch.
type PayoutBatch struct {
	Base
	Reference       string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"reference"`
	PaymentMethod   string          `gorm:"type:varchar(50);not null" json:"payment_method"`
	Note            string          `gorm:"type:text" json:"note,omitempty"`
	PaidAt          time.Time       `gorm:"not null" json:"paid_at"`
	PeriodStart     *time.Time      `json:"period_start,omitempty"`
	PeriodEnd       *time.Time      `json:"period_end,omitempty"`
	CommissionCount int             `gorm:"not null" json:"commission_count"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	CreatedBy       *uuid.UUID      `gorm:"type:uuid" json:"created_by,omitempty"`
}
