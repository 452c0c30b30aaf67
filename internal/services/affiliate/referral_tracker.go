package affiliate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fittrack/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tracker binds users to the affiliate code they signed up with
type Tracker struct {
	db       *gorm.DB
	registry *Registry
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewTracker creates a new referral tracker
func NewTracker(db *gorm.DB, registry *Registry) *Tracker {
	return &Tracker{
		db:       db,
		registry: registry,
		logger:   slog.Default().With("module", "affiliate", "component", "tracker"),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterReferral records that userID was referred by code. A user is referred
// at most once; later calls return the existing referral unchanged.
func (t *Tracker) RegisterReferral(ctx context.Context, userID uuid.UUID, code string) (*models.Referral, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	existing, err := t.GetReferral(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		t.logger.Debug("referral already registered", "user_id", userID, "affiliate_code", existing.AffiliateCode)
		return existing, nil
	}

	ac, err := t.registry.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if ac.OwnerID == userID {
		return nil, fmt.Errorf("%w: %s", ErrSelfReferral, ac.Code)
	}

	now := t.nowFn()
	ref := models.Referral{
		UserID:        userID,
		AffiliateCode: ac.Code,
		ReferredAt:    now,
		UpdatedAt:     now,
	}
	result := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&ref)
	if result.Error != nil {
		return nil, fmt.Errorf("error creating referral: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// lost a race with a concurrent registration for the same user
		return t.GetReferral(ctx, userID)
	}

	t.logger.Info("referral registered", "user_id", userID, "affiliate_code", ac.Code)
	return &ref, nil
}

// RegisterAtSignup is the signup-path variant: referral problems never fail the
// signup, they are logged and dropped.
func (t *Tracker) RegisterAtSignup(ctx context.Context, userID uuid.UUID, code string) *models.Referral {
	if NormalizeCode(code) == "" {
		return nil
	}
	ref, err := t.RegisterReferral(ctx, userID, code)
	if err != nil {
		t.logger.Warn("referral skipped at signup", "user_id", userID, "code", NormalizeCode(code), "error", err)
		return nil
	}
	return ref
}

// GetReferral returns the user's referral or nil when the user was not referred
func (t *Tracker) GetReferral(ctx context.Context, userID uuid.UUID) (*models.Referral, error) {
	var ref models.Referral
	err := t.db.WithContext(ctx).Take(&ref, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding referral: %w", err)
	}
	return &ref, nil
}
