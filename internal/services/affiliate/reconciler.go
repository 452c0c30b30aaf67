package affiliate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/lock"
	"github.com/fittrack/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome describes what a conversion event did
type Outcome string

const (
	OutcomeNotReferred       Outcome = "not_referred"
	OutcomeCommissionCreated Outcome = "commission_created"
	OutcomeDuplicateEvent    Outcome = "duplicate_event"
	OutcomeStaleEvent        Outcome = "stale_event"
	OutcomeCancelled         Outcome = "cancelled"
)

// ConversionEvent is a payment-provider event already mapped onto conversion
// (purchase, renewal) or cancellation (cancel, expire, refund).
type ConversionEvent struct {
	UserID              uuid.UUID
	SubscriptionEventID string
	GrossAmount         decimal.Decimal
	IsConversion        bool
}

// ConversionResult is returned to the webhook caller
type ConversionResult struct {
	Outcome        Outcome            `json:"outcome"`
	Referral       *models.Referral   `json:"referral,omitempty"`
	Commission     *models.Commission `json:"commission,omitempty"`
	CancelledCount int64              `json:"cancelled_count"`
}

// Reconciler applies conversion events to a user's referral and commissions.
// Calls for the same user are serialized by the locker and by a row lock on the
// referral; everything a call changes commits or rolls back together.
type Reconciler struct {
	db     *gorm.DB
	ledger *Ledger
	locker lock.Locker
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewReconciler creates a new conversion reconciler
func NewReconciler(db *gorm.DB, ledger *Ledger, locker lock.Locker) *Reconciler {
	return &Reconciler{
		db:     db,
		ledger: ledger,
		locker: locker,
		logger: slog.Default().With("module", "affiliate", "component", "reconciler"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func referralLockKey(userID uuid.UUID) string {
	return "affiliate:referral:" + userID.String()
}

// OnConversionEvent applies one event. Users without a referral are a no-op.
func (r *Reconciler) OnConversionEvent(ctx context.Context, ev ConversionEvent) (*ConversionResult, error) {
	ev.SubscriptionEventID = strings.TrimSpace(ev.SubscriptionEventID)
	if ev.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if ev.IsConversion {
		if ev.SubscriptionEventID == "" {
			return nil, fmt.Errorf("%w: subscription event id is required", ErrInvalidInput)
		}
		if ev.GrossAmount.IsNegative() {
			return nil, fmt.Errorf("%w: gross amount must not be negative", ErrInvalidInput)
		}
	}

	release, err := r.locker.Acquire(ctx, referralLockKey(ev.UserID))
	if err != nil {
		return nil, fmt.Errorf("error locking referral for user %s: %w", ev.UserID, err)
	}
	defer release()

	result := &ConversionResult{}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref models.Referral
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&ref, "user_id = ?", ev.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Outcome = OutcomeNotReferred
			return nil
		}
		if err != nil {
			return fmt.Errorf("error loading referral: %w", err)
		}
		result.Referral = &ref

		if ev.IsConversion {
			return r.applyConversion(tx, &ref, ev, result)
		}
		return r.applyCancellation(tx, &ref, result)
	})
	if err != nil {
		r.logger.Error("conversion event failed",
			"user_id", ev.UserID,
			"subscription_event_id", ev.SubscriptionEventID,
			"is_conversion", ev.IsConversion,
			"error", err)
		return nil, err
	}

	r.logger.Info("conversion event reconciled",
		"user_id", ev.UserID,
		"subscription_event_id", ev.SubscriptionEventID,
		"is_conversion", ev.IsConversion,
		"outcome", result.Outcome,
		"cancelled_count", result.CancelledCount)
	return result, nil
}

func (r *Reconciler) applyConversion(tx *gorm.DB, ref *models.Referral, ev ConversionEvent, result *ConversionResult) error {
	existing, err := r.ledger.findByEventWithTx(tx, ev.SubscriptionEventID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.UserID != ev.UserID {
			return fmt.Errorf("%w: event %s belongs to another user", ErrInvalidInput, ev.SubscriptionEventID)
		}
		result.Commission = existing
		if existing.Status == models.CommissionStatusCancelled {
			// replay of a purchase that was already reversed
			result.Outcome = OutcomeStaleEvent
			return nil
		}
		result.Outcome = OutcomeDuplicateEvent
		return r.markPremium(tx, ref)
	}

	// current rate, even when the code has since been deactivated
	var code models.AffiliateCode
	if err := tx.Take(&code, "code = ?", ref.AffiliateCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: affiliate code %s", ErrNotFound, ref.AffiliateCode)
		}
		return fmt.Errorf("error loading affiliate code: %w", err)
	}

	commission, created, err := r.ledger.CreateCommissionWithTx(tx, CommissionInput{
		AffiliateCode:        code.Code,
		UserID:               ev.UserID,
		SubscriptionEventID:  ev.SubscriptionEventID,
		GrossAmount:          ev.GrossAmount,
		CommissionPercentage: code.CommissionPercentage,
	})
	if err != nil {
		return err
	}
	result.Commission = commission
	result.Outcome = OutcomeCommissionCreated
	if !created {
		result.Outcome = OutcomeDuplicateEvent
	}
	return r.markPremium(tx, ref)
}

func (r *Reconciler) markPremium(tx *gorm.DB, ref *models.Referral) error {
	if ref.IsPremium && ref.PremiumConvertedAt != nil {
		return nil
	}
	now := r.nowFn()
	ref.SetPremium(true, now)
	ref.UpdatedAt = now
	return r.saveFlag(tx, ref)
}

func (r *Reconciler) applyCancellation(tx *gorm.DB, ref *models.Referral, result *ConversionResult) error {
	ref.SetPremium(false, r.nowFn())
	ref.UpdatedAt = r.nowFn()
	if err := r.saveFlag(tx, ref); err != nil {
		return err
	}

	cancelled, err := r.ledger.CancelPendingForUserWithTx(tx, ref.UserID)
	if err != nil {
		return err
	}
	result.Outcome = OutcomeCancelled
	result.CancelledCount = cancelled
	return nil
}

func (r *Reconciler) saveFlag(tx *gorm.DB, ref *models.Referral) error {
	err := tx.Model(&models.Referral{}).Where("id = ?", ref.ID).Updates(map[string]interface{}{
		"is_premium":           ref.IsPremium,
		"premium_converted_at": ref.PremiumConvertedAt,
		"updated_at":           ref.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("error updating referral: %w", err)
	}
	return nil
}
