package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AffiliateCode is a referral token owned by an affiliate. Rows are never deleted;
// commissions copy the percentage at creation time instead of joining back here.
type AffiliateCode struct {
	Code                 string          `gorm:"type:varchar(32);primaryKey" json:"code"`
	OwnerID              uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_percentage"`
	IsActive             bool            `gorm:"not null" json:"is_active"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Referral binds a referred user to the code they signed up with. One row per user, ever.
type Referral struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	AffiliateCode      string     `gorm:"type:varchar(32);not null;index" json:"affiliate_code"`
	ReferredAt         time.Time  `gorm:"not null;index" json:"referred_at"`
	IsPremium          bool       `gorm:"not null;index" json:"is_premium"`
	PremiumConvertedAt *time.Time `json:"premium_converted_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BeforeCreate assigns the row id
func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SetPremium flips the premium flag keeping premium_converted_at in step with it.
// The original conversion time is kept across renewals.
func (r *Referral) SetPremium(premium bool, at time.Time) {
	if !premium {
		r.IsPremium = false
		r.PremiumConvertedAt = nil
		return
	}
	if !r.IsPremium || r.PremiumConvertedAt == nil {
		converted := at
		r.PremiumConvertedAt = &converted
	}
	r.IsPremium = true
}
