package affiliate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fittrack/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportFilter narrows reports. From/To bound referred_at for referral counts and
// created_at for commission sums.
type ReportFilter struct {
	From    *time.Time
	To      *time.Time
	OwnerID *uuid.UUID
	Code    string
}

// Rollup holds the figures shared by per-affiliate and system reports.
// TotalCommissions is pending plus paid; cancelled amounts are reported apart.
type Rollup struct {
	TotalReferrals       int64           `json:"total_referrals"`
	PremiumReferrals     int64           `json:"premium_referrals"`
	ConversionRate       float64         `json:"conversion_rate"`
	TotalCommissions     decimal.Decimal `json:"total_commissions"`
	PendingCommissions   decimal.Decimal `json:"pending_commissions"`
	PaidCommissions      decimal.Decimal `json:"paid_commissions"`
	CancelledCommissions decimal.Decimal `json:"cancelled_commissions"`
}

// AffiliateStats is the report line for one code
type AffiliateStats struct {
	AffiliateCode        string          `json:"affiliate_code"`
	OwnerID              uuid.UUID       `json:"owner_id"`
	IsActive             bool            `json:"is_active"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	Rollup
}

// SystemStats is the system-wide rollup
type SystemStats struct {
	AffiliateCodes       int       `json:"affiliate_codes"`
	ActiveAffiliateCodes int       `json:"active_affiliate_codes"`
	GeneratedAt          time.Time `json:"generated_at"`
	Rollup
}

// Dashboard is what an affiliate sees about their own codes
type Dashboard struct {
	OwnerID uuid.UUID        `json:"owner_id"`
	Codes   []AffiliateStats `json:"codes"`
	Summary Rollup           `json:"summary"`
}

type referralCount struct {
	AffiliateCode string
	Total         int64
	Premium       int64
}

// Reporter answers read-only aggregate queries straight from the store
type Reporter struct {
	db     *gorm.DB
	ledger *Ledger
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewReporter creates a new reporting aggregator
func NewReporter(db *gorm.DB, ledger *Ledger) *Reporter {
	return &Reporter{
		db:     db,
		ledger: ledger,
		logger: slog.Default().With("module", "affiliate", "component", "reporting"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// AffiliateReport returns one line per affiliate code matching the filter. Codes,
// referral counts and commission totals are read from one snapshot.
func (r *Reporter) AffiliateReport(ctx context.Context, f ReportFilter) ([]AffiliateStats, error) {
	var stats []AffiliateStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stats, err = r.affiliateReportWithTx(tx, f)
		return err
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		r.logger.Error("affiliate report failed", "owner_id", f.OwnerID, "code", f.Code, "error", err)
		return nil, err
	}
	return stats, nil
}

func (r *Reporter) affiliateReportWithTx(tx *gorm.DB, f ReportFilter) ([]AffiliateStats, error) {
	query := tx.Order("code")
	if f.OwnerID != nil {
		query = query.Where("owner_id = ?", *f.OwnerID)
	}
	if code := NormalizeCode(f.Code); code != "" {
		query = query.Where("code = ?", code)
	}
	var codes []models.AffiliateCode
	if err := query.Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("error listing affiliate codes: %w", err)
	}
	if len(codes) == 0 {
		return []AffiliateStats{}, nil
	}

	names := make([]string, 0, len(codes))
	for _, c := range codes {
		names = append(names, c.Code)
	}

	counts, err := referralCountsWithTx(tx, names, f)
	if err != nil {
		return nil, err
	}
	totals, err := r.ledger.totalsWithTx(tx, TotalsFilter{Codes: names, From: f.From, To: f.To})
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]*AffiliateStats, len(codes))
	stats := make([]AffiliateStats, len(codes))
	for i, c := range codes {
		stats[i] = AffiliateStats{
			AffiliateCode:        c.Code,
			OwnerID:              c.OwnerID,
			IsActive:             c.IsActive,
			CommissionPercentage: c.CommissionPercentage,
			Rollup:               emptyRollup(),
		}
		byCode[c.Code] = &stats[i]
	}
	for _, rc := range counts {
		if s, ok := byCode[rc.AffiliateCode]; ok {
			s.TotalReferrals = rc.Total
			s.PremiumReferrals = rc.Premium
		}
	}
	for _, t := range totals {
		if s, ok := byCode[t.AffiliateCode]; ok {
			s.Rollup.addCommission(t.Status, t.Amount)
		}
	}
	for i := range stats {
		stats[i].Rollup.finish()
	}
	return stats, nil
}

// AffiliateStatsFor returns the report line of a single code
func (r *Reporter) AffiliateStatsFor(ctx context.Context, code string, f ReportFilter) (*AffiliateStats, error) {
	f.Code = NormalizeCode(code)
	if f.Code == "" {
		return nil, fmt.Errorf("%w: affiliate code is required", ErrInvalidInput)
	}
	stats, err := r.AffiliateReport(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: affiliate code %s", ErrNotFound, f.Code)
	}
	return &stats[0], nil
}

// SystemReport rolls every affiliate up into one line
func (r *Reporter) SystemReport(ctx context.Context, f ReportFilter) (*SystemStats, error) {
	f.OwnerID = nil
	f.Code = ""
	stats, err := r.AffiliateReport(ctx, f)
	if err != nil {
		return nil, err
	}
	return r.rollupStats(stats), nil
}

// rollupStats sums report lines into a SystemStats
func (r *Reporter) rollupStats(stats []AffiliateStats) *SystemStats {
	sys := &SystemStats{GeneratedAt: r.nowFn(), Rollup: sum(stats)}
	sys.AffiliateCodes = len(stats)
	for _, s := range stats {
		if s.IsActive {
			sys.ActiveAffiliateCodes++
		}
	}
	return sys
}

// OwnerDashboard returns the stats of every code owned by ownerID
func (r *Reporter) OwnerDashboard(ctx context.Context, ownerID uuid.UUID, f ReportFilter) (*Dashboard, error) {
	f.OwnerID = &ownerID
	f.Code = ""
	stats, err := r.AffiliateReport(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Dashboard{OwnerID: ownerID, Codes: stats, Summary: sum(stats)}, nil
}

func referralCountsWithTx(tx *gorm.DB, codes []string, f ReportFilter) ([]referralCount, error) {
	query := tx.Model(&models.Referral{}).
		Select("affiliate_code, COUNT(*) AS total, SUM(CASE WHEN is_premium THEN 1 ELSE 0 END) AS premium").
		Where("affiliate_code IN ?", codes)
	query = applyRange(query, "referred_at", f.From, f.To)

	var counts []referralCount
	if err := query.Group("affiliate_code").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("error counting referrals: %w", err)
	}
	return counts, nil
}

func emptyRollup() Rollup {
	return Rollup{
		TotalCommissions:     decimal.Zero,
		PendingCommissions:   decimal.Zero,
		PaidCommissions:      decimal.Zero,
		CancelledCommissions: decimal.Zero,
	}
}

func (ro *Rollup) addCommission(status models.CommissionStatus, amount decimal.Decimal) {
	switch status {
	case models.CommissionStatusPending:
		ro.PendingCommissions = ro.PendingCommissions.Add(amount)
	case models.CommissionStatusPaid:
		ro.PaidCommissions = ro.PaidCommissions.Add(amount)
	case models.CommissionStatusCancelled:
		ro.CancelledCommissions = ro.CancelledCommissions.Add(amount)
	}
}

func (ro *Rollup) finish() {
	ro.TotalCommissions = ro.PendingCommissions.Add(ro.PaidCommissions)
	ro.ConversionRate = conversionRate(ro.PremiumReferrals, ro.TotalReferrals)
}

func sum(stats []AffiliateStats) Rollup {
	total := emptyRollup()
	for _, s := range stats {
		total.TotalReferrals += s.TotalReferrals
		total.PremiumReferrals += s.PremiumReferrals
		total.PendingCommissions = total.PendingCommissions.Add(s.PendingCommissions)
		total.PaidCommissions = total.PaidCommissions.Add(s.PaidCommissions)
		total.CancelledCommissions = total.CancelledCommissions.Add(s.CancelledCommissions)
	}
	total.finish()
	return total
}

// conversionRate is premium/total rounded to 4 places, 0 when there are no referrals
func conversionRate(premium, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(premium).Div(decimal.NewFromInt(total)).Round(4).InexactFloat64()
}
