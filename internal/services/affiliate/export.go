package affiliate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	affiliatesSheet = "Affiliates"
	systemSheet     = "System"
)

var affiliateHeader = []interface{}{
	"Code", "Owner ID", "Active", "Commission %",
	"Referrals", "Premium", "Conversion Rate",
	"Total Commissions", "Pending", "Paid", "Cancelled",
}

// ExportAffiliateReport renders the affiliate report as an XLSX workbook with a
// summary sheet totalling the exported rows
func (r *Reporter) ExportAffiliateReport(ctx context.Context, f ReportFilter) ([]byte, error) {
	stats, err := r.AffiliateReport(ctx, f)
	if err != nil {
		return nil, err
	}
	sys := r.rollupStats(stats)

	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", affiliatesSheet); err != nil {
		return nil, fmt.Errorf("error naming sheet: %w", err)
	}
	if err := book.SetSheetRow(affiliatesSheet, "A1", &affiliateHeader); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}
	for i, s := range stats {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			s.AffiliateCode,
			s.OwnerID.String(),
			s.IsActive,
			s.CommissionPercentage.InexactFloat64(),
			s.TotalReferrals,
			s.PremiumReferrals,
			s.ConversionRate,
			s.TotalCommissions.InexactFloat64(),
			s.PendingCommissions.InexactFloat64(),
			s.PaidCommissions.InexactFloat64(),
			s.CancelledCommissions.InexactFloat64(),
		}
		if err := book.SetSheetRow(affiliatesSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}

	if _, err := book.NewSheet(systemSheet); err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Generated At", sys.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Affiliate Codes", sys.AffiliateCodes},
		{"Active Codes", sys.ActiveAffiliateCodes},
		{"Referrals", sys.TotalReferrals},
		{"Premium", sys.PremiumReferrals},
		{"Conversion Rate", sys.ConversionRate},
		{"Total Commissions", sys.TotalCommissions.InexactFloat64()},
		{"Pending", sys.PendingCommissions.InexactFloat64()},
		{"Paid", sys.PaidCommissions.InexactFloat64()},
		{"Cancelled", sys.CancelledCommissions.InexactFloat64()},
	}
	for i, line := range summary {
		if err := book.SetSheetRow(systemSheet, fmt.Sprintf("A%d", i+1), &line); err != nil {
			return nil, fmt.Errorf("error writing summary: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
