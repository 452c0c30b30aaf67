package affiliate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/models"
	"github.com/fittrack/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettleRequest is one operator payment run
type SettleRequest struct {
	CommissionIDs []uuid.UUID
	PaymentMethod string
	Reference     string
	Note          string
	PaidAt        time.Time
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	ActorID       *uuid.UUID
}

// SkippedCommission is an id that was not transitioned and why
type SkippedCommission struct {
	ID     uuid.UUID               `json:"id"`
	Status models.CommissionStatus `json:"status"`
}

// SettlementResult lets operators compare what they paid with what moved to paid
type SettlementResult struct {
	Batch        *models.PayoutBatch `json:"batch"`
	Transitioned []uuid.UUID         `json:"transitioned"`
	Skipped      []SkippedCommission `json:"skipped"`
	TotalPaid    decimal.Decimal     `json:"total_paid"`
}

// PayoutProcessor settles batches of pending commissions
type PayoutProcessor struct {
	db     *gorm.DB
	ledger *Ledger
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewPayoutProcessor creates a new payout batch processor
func NewPayoutProcessor(db *gorm.DB, ledger *Ledger) *PayoutProcessor {
	return &PayoutProcessor{
		db:     db,
		ledger: ledger,
		logger: slog.Default().With("module", "affiliate", "component", "payout"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Settle marks the pending commissions among req.CommissionIDs paid under one
// payout batch. Unknown ids, or pending commissions outside the supplied period,
// reject the whole batch. Without PeriodStart and PeriodEnd no period check is
// made and a batch may mix commissions from any dates. Already paid or cancelled
// ids are skipped, so resubmitting the same reference is safe.
func (p *PayoutProcessor) Settle(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Reference = strings.TrimSpace(req.Reference)
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: payment method is required", ErrInvalidInput)
	}
	if req.Reference == "" {
		req.Reference = utils.GenerateReference("PAYOUT")
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && !req.PeriodEnd.After(*req.PeriodStart) {
		return nil, fmt.Errorf("%w: period end must be after period start", ErrInvalidInput)
	}
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = p.nowFn()
	}

	result := &SettlementResult{TotalPaid: decimal.Zero}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, missing, err := p.ledger.lockCommissionsWithTx(tx, req.CommissionIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %d commission ids do not exist, first %s", ErrNotFound, len(missing), missing[0])
		}
		if err := checkPeriod(rows, req.PeriodStart, req.PeriodEnd); err != nil {
			return err
		}

		batch, err := p.upsertBatch(tx, req, paidAt)
		if err != nil {
			return err
		}

		paid, err := p.ledger.markPaidWithTx(tx, rows, batch.PaidAt, batch.Reference, &batch.ID)
		if err != nil {
			return err
		}
		if err := p.refreshTotals(tx, batch); err != nil {
			return err
		}

		result.Batch = batch
		result.TotalPaid = paid.TotalAmount
		for _, c := range paid.Paid {
			result.Transitioned = append(result.Transitioned, c.ID)
		}
		for _, c := range paid.Skipped {
			result.Skipped = append(result.Skipped, SkippedCommission{ID: c.ID, Status: c.Status})
		}
		return nil
	})
	if err != nil {
		p.logger.Error("payout settlement failed", "reference", req.Reference, "error", err)
		return nil, err
	}

	p.logger.Info("payout settled",
		"batch_id", result.Batch.ID,
		"reference", result.Batch.Reference,
		"payment_method", result.Batch.PaymentMethod,
		"transitioned", len(result.Transitioned),
		"skipped", len(result.Skipped),
		"total_paid", result.TotalPaid.StringFixed(2))
	return result, nil
}

// checkPeriod requires every pending commission to fall inside [start, end)
func checkPeriod(rows []models.Commission, start, end *time.Time) error {
	for _, row := range rows {
		if !row.IsPending() {
			continue
		}
		if start != nil && row.CreatedAt.Before(*start) {
			return fmt.Errorf("%w: commission %s was created before the payout period", ErrInvalidInput, row.ID)
		}
		if end != nil && !row.CreatedAt.Before(*end) {
			return fmt.Errorf("%w: commission %s was created after the payout period", ErrInvalidInput, row.ID)
		}
	}
	return nil
}

func (p *PayoutProcessor) upsertBatch(tx *gorm.DB, req SettleRequest, paidAt time.Time) (*models.PayoutBatch, error) {
	batch := models.PayoutBatch{
		Reference:     req.Reference,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
		PaidAt:        paidAt.UTC(),
		PeriodStart:   req.PeriodStart,
		PeriodEnd:     req.PeriodEnd,
		TotalAmount:   decimal.Zero,
		CreatedBy:     req.ActorID,
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoNothing: true,
	}).Create(&batch)
	if result.Error != nil {
		return nil, fmt.Errorf("error creating payout batch: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return &batch, nil
	}

	// the reference already exists, possibly from a concurrent settlement
	var existing models.PayoutBatch
	if err := tx.Take(&existing, "reference = ?", req.Reference).Error; err != nil {
		return nil, fmt.Errorf("error finding payout batch: %w", err)
	}
	if !strings.EqualFold(existing.PaymentMethod, req.PaymentMethod) {
		return nil, fmt.Errorf("%w: reference %s was already used with payment method %s",
			ErrInvalidInput, req.Reference, existing.PaymentMethod)
	}
	return &existing, nil
}

// refreshTotals recomputes the batch totals from the commissions it owns, so a
// retried reference that pays extra ids stays consistent.
func (p *PayoutProcessor) refreshTotals(tx *gorm.DB, batch *models.PayoutBatch) error {
	var agg struct {
		Count  int64
		Amount decimal.Decimal
	}
	err := tx.Model(&models.Commission{}).
		Select("COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS amount").
		Where("payout_batch_id = ?", batch.ID).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("error summing payout batch: %w", err)
	}

	batch.CommissionCount = int(agg.Count)
	batch.TotalAmount = agg.Amount.Round(2)
	err = tx.Model(&models.PayoutBatch{}).Where("id = ?", batch.ID).Updates(map[string]interface{}{
		"commission_count": batch.CommissionCount,
		"total_amount":     batch.TotalAmount,
		"updated_at":       p.nowFn(),
	}).Error
	if err != nil {
		return fmt.Errorf("error updating payout batch: %w", err)
	}
	return nil
}

// ListBatches returns payout batches newest first
func (p *PayoutProcessor) ListBatches(ctx context.Context, limit int) ([]models.PayoutBatch, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	var batches []models.PayoutBatch
	if err := p.db.WithContext(ctx).Order("paid_at DESC").Limit(limit).Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("error listing payout batches: %w", err)
	}
	return batches, nil
}
