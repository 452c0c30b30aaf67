package affiliate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/models"
	"github.com/fittrack/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxStemLength  = 10
	fallbackStem   = "FIT"
	minStemLength  = 3
	defaultAttempt = 5
)

// RegistryConfig controls code generation
type RegistryConfig struct {
	MaxAttempts  int
	SuffixLength int
}

// CreateCodeInput describes a new affiliate code. Code is optional; when empty
// one is derived from the owner's display name.
type CreateCodeInput struct {
	OwnerID              uuid.UUID
	CommissionPercentage decimal.Decimal
	Code                 string
}

// Registry owns affiliate codes, their commission percentage and active flag
type Registry struct {
	db       *gorm.DB
	cfg      RegistryConfig
	logger   *slog.Logger
	nowFn    func() time.Time
	suffixFn func(n int) string
}

// NewRegistry creates a new affiliate code registry
func NewRegistry(db *gorm.DB, cfg RegistryConfig) *Registry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempt
	}
	if cfg.SuffixLength <= 0 {
		cfg.SuffixLength = 2
	}
	return &Registry{
		db:       db,
		cfg:      cfg,
		logger:   slog.Default().With("module", "affiliate", "component", "registry"),
		nowFn:    func() time.Time { return time.Now().UTC() },
		suffixFn: utils.GenerateCodeSuffix,
	}
}

// CreateCode provisions a code for an affiliate. Generated codes are retried on
// collision up to MaxAttempts; explicit codes get a single attempt.
func (r *Registry) CreateCode(ctx context.Context, in CreateCodeInput) (*models.AffiliateCode, error) {
	if err := ValidatePercentage(in.CommissionPercentage); err != nil {
		return nil, err
	}

	var owner models.User
	if err := r.db.WithContext(ctx).Take(&owner, "id = ?", in.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: owner %s", ErrNotFound, in.OwnerID)
		}
		return nil, fmt.Errorf("error finding owner: %w", err)
	}

	explicit := NormalizeCode(in.Code)
	if explicit != "" {
		if !validCode(explicit) {
			return nil, fmt.Errorf("%w: code must be 3-32 letters or digits", ErrInvalidInput)
		}
		row, inserted, err := r.insert(ctx, explicit, in)
		if err != nil {
			return nil, err
		}
		if !inserted {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, explicit)
		}
		return row, nil
	}

	stem := codeStem(owner.DisplayName)
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		candidate := stem + r.suffixFn(r.cfg.SuffixLength)
		row, inserted, err := r.insert(ctx, candidate, in)
		if err != nil {
			return nil, err
		}
		if inserted {
			r.logger.Info("affiliate code created", "code", row.Code, "owner_id", in.OwnerID, "attempt", attempt)
			return row, nil
		}
		r.logger.Debug("affiliate code collision", "candidate", candidate, "attempt", attempt)
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts for stem %s", ErrDuplicateCode, r.cfg.MaxAttempts, stem)
}

func (r *Registry) insert(ctx context.Context, code string, in CreateCodeInput) (*models.AffiliateCode, bool, error) {
	now := r.nowFn()
	row := models.AffiliateCode{
		Code:                 code,
		OwnerID:              in.OwnerID,
		CommissionPercentage: in.CommissionPercentage,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return nil, false, fmt.Errorf("error creating affiliate code: %w", result.Error)
	}
	return &row, result.RowsAffected == 1, nil
}

// SetActive enables or soft-disables a code
func (r *Registry) SetActive(ctx context.Context, code string, active bool) (*models.AffiliateCode, error) {
	code = NormalizeCode(code)
	if err := r.update(ctx, code, map[string]interface{}{"is_active": active}); err != nil {
		return nil, err
	}
	r.logger.Info("affiliate code active flag changed", "code", code, "is_active", active)
	return r.Get(ctx, code)
}

// SetCommissionPercentage changes the live rate. Existing commissions keep the
// percentage they were created with.
func (r *Registry) SetCommissionPercentage(ctx context.Context, code string, pct decimal.Decimal) (*models.AffiliateCode, error) {
	if err := ValidatePercentage(pct); err != nil {
		return nil, err
	}
	code = NormalizeCode(code)
	if err := r.update(ctx, code, map[string]interface{}{"commission_percentage": pct}); err != nil {
		return nil, err
	}
	r.logger.Info("affiliate commission percentage changed", "code", code, "commission_percentage", pct.String())
	return r.Get(ctx, code)
}

func (r *Registry) update(ctx context.Context, code string, fields map[string]interface{}) error {
	fields["updated_at"] = r.nowFn()
	result := r.db.WithContext(ctx).Model(&models.AffiliateCode{}).Where("code = ?", code).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("error updating affiliate code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: affiliate code %s", ErrNotFound, code)
	}
	return nil
}

// Resolve looks up a code for a new referral. Inactive codes are rejected.
func (r *Registry) Resolve(ctx context.Context, code string) (*models.AffiliateCode, error) {
	row, err := r.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !row.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrInactiveCode, row.Code)
	}
	return row, nil
}

// Get returns a code regardless of its active flag
func (r *Registry) Get(ctx context.Context, code string) (*models.AffiliateCode, error) {
	return r.getWithTx(r.db.WithContext(ctx), code)
}

func (r *Registry) getWithTx(tx *gorm.DB, code string) (*models.AffiliateCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: affiliate code is required", ErrInvalidInput)
	}
	var row models.AffiliateCode
	if err := tx.Take(&row, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: affiliate code %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("error finding affiliate code: %w", err)
	}
	return &row, nil
}

// List returns every code, optionally restricted to one owner
func (r *Registry) List(ctx context.Context, ownerID *uuid.UUID) ([]models.AffiliateCode, error) {
	query := r.db.WithContext(ctx).Order("code")
	if ownerID != nil {
		query = query.Where("owner_id = ?", *ownerID)
	}
	var rows []models.AffiliateCode
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error listing affiliate codes: %w", err)
	}
	return rows, nil
}

// codeStem turns "Jane O'Neil" into "JANEONEIL"
func codeStem(displayName string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(slug.Make(displayName)) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		}
		if b.Len() == maxStemLength {
			break
		}
	}
	stem := b.String()
	if len(stem) < minStemLength {
		return fallbackStem + stem
	}
	return stem
}
