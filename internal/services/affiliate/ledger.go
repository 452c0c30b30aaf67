package affiliate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 100

// CommissionInput is one billable conversion event
type CommissionInput struct {
	AffiliateCode        string
	UserID               uuid.UUID
	SubscriptionEventID  string
	GrossAmount          decimal.Decimal
	CommissionPercentage decimal.Decimal
}

// CommissionFilter narrows List
type CommissionFilter struct {
	AffiliateCode string
	UserID        *uuid.UUID
	Status        models.CommissionStatus
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// TotalsFilter narrows Totals. Codes restricts to a set of affiliate codes when non-empty.
type TotalsFilter struct {
	Codes []string
	From  *time.Time
	To    *time.Time
}

// CommissionTotal is one (affiliate, status) bucket
type CommissionTotal struct {
	AffiliateCode string                  `json:"affiliate_code"`
	Status        models.CommissionStatus `json:"status"`
	Count         int64                   `json:"count"`
	Amount        decimal.Decimal         `json:"amount"`
}

// MarkPaidResult reports what a markPaid call actually did
type MarkPaidResult struct {
	Paid        []models.Commission `json:"paid"`
	Skipped     []models.Commission `json:"skipped"`
	NotFound    []uuid.UUID         `json:"not_found"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
}

// Ledger stores one commission per billable conversion event
type Ledger struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewLedger creates a new commission ledger
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		db:     db,
		logger: slog.Default().With("module", "affiliate", "component", "ledger"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateCommission inserts a pending commission keyed by the subscription event id.
// If the event was already recorded the existing row is returned and created is false.
func (l *Ledger) CreateCommission(ctx context.Context, in CommissionInput) (*models.Commission, bool, error) {
	var (
		row     *models.Commission
		created bool
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, created, err = l.CreateCommissionWithTx(tx, in)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return row, created, nil
}

// CreateCommissionWithTx is CreateCommission inside the caller's transaction
func (l *Ledger) CreateCommissionWithTx(tx *gorm.DB, in CommissionInput) (*models.Commission, bool, error) {
	eventID := strings.TrimSpace(in.SubscriptionEventID)
	if eventID == "" {
		return nil, false, fmt.Errorf("%w: subscription event id is required", ErrInvalidInput)
	}
	if in.UserID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.GrossAmount.IsNegative() {
		return nil, false, fmt.Errorf("%w: gross amount must not be negative", ErrInvalidInput)
	}
	if err := ValidatePercentage(in.CommissionPercentage); err != nil {
		return nil, false, err
	}

	// the amount is derived from the stored gross so the row always satisfies
	// commission_amount = round2(gross_amount * commission_percentage / 100)
	gross := in.GrossAmount.Round(2)
	now := l.nowFn()
	row := models.Commission{
		AffiliateCode:        NormalizeCode(in.AffiliateCode),
		UserID:               in.UserID,
		SubscriptionEventID:  eventID,
		GrossAmount:          gross,
		CommissionPercentage: in.CommissionPercentage,
		CommissionAmount:     ComputeCommission(gross, in.CommissionPercentage),
		Status:               models.CommissionStatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_event_id"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return nil, false, fmt.Errorf("error creating commission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		existing, err := l.findByEventWithTx(tx, eventID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	l.logger.Info("commission created",
		"commission_id", row.ID,
		"affiliate_code", row.AffiliateCode,
		"user_id", row.UserID,
		"subscription_event_id", eventID,
		"commission_amount", row.CommissionAmount.StringFixed(2))
	return &row, true, nil
}

func (l *Ledger) findByEventWithTx(tx *gorm.DB, eventID string) (*models.Commission, error) {
	var row models.Commission
	if err := tx.Take(&row, "subscription_event_id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: commission for event %s", ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("error finding commission: %w", err)
	}
	return &row, nil
}

// FindByEvent returns the commission recorded for a subscription event, or nil
func (l *Ledger) FindByEvent(ctx context.Context, eventID string) (*models.Commission, error) {
	row, err := l.findByEventWithTx(l.db.WithContext(ctx), eventID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return row, err
}

// CancelPendingForUser moves every pending commission of the user to cancelled.
// Paid commissions are left untouched.
func (l *Ledger) CancelPendingForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return l.CancelPendingForUserWithTx(l.db.WithContext(ctx), userID)
}

// CancelPendingForUserWithTx is CancelPendingForUser inside the caller's transaction
func (l *Ledger) CancelPendingForUserWithTx(tx *gorm.DB, userID uuid.UUID) (int64, error) {
	now := l.nowFn()
	result := tx.Model(&models.Commission{}).
		Where("user_id = ? AND status = ?", userID, models.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":       models.CommissionStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("error cancelling commissions: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		l.logger.Info("pending commissions cancelled", "user_id", userID, "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// MarkPaid moves the pending commissions among ids to paid in one transaction.
// Ids that are already paid or cancelled are skipped, unknown ids are reported.
func (l *Ledger) MarkPaid(ctx context.Context, ids []uuid.UUID, paidAt time.Time, reference string) (*MarkPaidResult, error) {
	var result *MarkPaidResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, missing, err := l.lockCommissionsWithTx(tx, ids)
		if err != nil {
			return err
		}
		result, err = l.markPaidWithTx(tx, rows, paidAt, reference, nil)
		if err != nil {
			return err
		}
		result.NotFound = missing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockCommissionsWithTx loads the commissions for ids with a row lock and
// returns the ids that do not exist.
func (l *Ledger) lockCommissionsWithTx(tx *gorm.DB, ids []uuid.UUID) ([]models.Commission, []uuid.UUID, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one commission id is required", ErrInvalidInput)
	}

	var rows []models.Commission
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("error loading commissions: %w", err)
	}

	found := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		found[row.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return rows, missing, nil
}

func (l *Ledger) markPaidWithTx(tx *gorm.DB, rows []models.Commission, paidAt time.Time, reference string, batchID *uuid.UUID) (*MarkPaidResult, error) {
	result := &MarkPaidResult{TotalAmount: decimal.Zero}
	var pendingIDs []uuid.UUID
	for _, row := range rows {
		if row.IsPending() {
			pendingIDs = append(pendingIDs, row.ID)
		} else {
			result.Skipped = append(result.Skipped, row)
		}
	}
	if len(pendingIDs) == 0 {
		return result, nil
	}

	paidAt = paidAt.UTC()
	updates := map[string]interface{}{
		"status":           models.CommissionStatusPaid,
		"paid_at":          paidAt,
		"payout_reference": reference,
		"updated_at":       l.nowFn(),
	}
	if batchID != nil {
		updates["payout_batch_id"] = *batchID
	}
	res := tx.Model(&models.Commission{}).
		Where("id IN ? AND status = ?", pendingIDs, models.CommissionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("error marking commissions paid: %w", res.Error)
	}
	if res.RowsAffected != int64(len(pendingIDs)) {
		return nil, fmt.Errorf("commission status changed during payout: expected %d rows, updated %d", len(pendingIDs), res.RowsAffected)
	}

	for _, row := range rows {
		if !row.IsPending() {
			continue
		}
		row.Status = models.CommissionStatusPaid
		row.PaidAt = &paidAt
		row.PayoutReference = reference
		row.PayoutBatchID = batchID
		result.Paid = append(result.Paid, row)
		result.TotalAmount = result.TotalAmount.Add(row.CommissionAmount)
	}
	return result, nil
}

// Get returns a single commission
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var row models.Commission
	if err := l.db.WithContext(ctx).Take(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: commission %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("error finding commission: %w", err)
	}
	return &row, nil
}

// List returns commissions newest first
func (l *Ledger) List(ctx context.Context, f CommissionFilter) ([]models.Commission, error) {
	query := l.db.WithContext(ctx).Model(&models.Commission{})
	if code := NormalizeCode(f.AffiliateCode); code != "" {
		query = query.Where("affiliate_code = ?", code)
	}
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	query = applyRange(query, "created_at", f.From, f.To)

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}

	var rows []models.Commission
	if err := query.Order("created_at DESC, id").Limit(limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error listing commissions: %w", err)
	}
	return rows, nil
}

// Totals sums commission amounts grouped by affiliate code and status
func (l *Ledger) Totals(ctx context.Context, f TotalsFilter) ([]CommissionTotal, error) {
	return l.totalsWithTx(l.db.WithContext(ctx), f)
}

func (l *Ledger) totalsWithTx(tx *gorm.DB, f TotalsFilter) ([]CommissionTotal, error) {
	query := tx.Model(&models.Commission{}).
		Select("affiliate_code, status, COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS amount")
	if len(f.Codes) > 0 {
		query = query.Where("affiliate_code IN ?", f.Codes)
	}
	query = applyRange(query, "created_at", f.From, f.To)

	var totals []CommissionTotal
	if err := query.Group("affiliate_code, status").Order("affiliate_code, status").Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("error summing commissions: %w", err)
	}
	for i := range totals {
		totals[i].Amount = totals[i].Amount.Round(2)
	}
	return totals, nil
}

// applyRange restricts column to [from, to)
func applyRange(query *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		query = query.Where(column+" >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where(column+" < ?", to.UTC())
	}
	return query
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
