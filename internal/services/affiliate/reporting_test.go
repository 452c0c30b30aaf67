package affiliate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestConversionRate(t *testing.T) {
	assert.Equal(t, 0.0, conversionRate(0, 0))
	assert.Equal(t, 0.0, conversionRate(3, 0))
	assert.Equal(t, 0.25, conversionRate(1, 4))
	assert.Equal(t, 0.3333, conversionRate(1, 3))
	assert.Equal(t, 1.0, conversionRate(2, 2))
}

func TestAffiliateReport(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alpha := createCode(t, svc, db, "ALPHA1", "30")
	createCode(t, svc, db, "BRAVO1", "10")

	premium := referredUser(t, svc, db, "ALPHA1")
	churned := referredUser(t, svc, db, "ALPHA1")
	referredUser(t, svc, db, "ALPHA1")
	referredUser(t, svc, db, "ALPHA1")

	paid := convert(t, svc, premium, "tx_1", "10.00").Commission
	convert(t, svc, premium, "tx_2", "10.00")
	convert(t, svc, churned, "tx_3", "20.00")
	cancel(t, svc, churned)
	_, err := svc.Ledger.MarkPaid(ctx, []uuid.UUID{paid.ID}, time.Now(), "REF")
	require.NoError(t, err)

	stats, err := svc.Reports.AffiliateReport(ctx, ReportFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	a := stats[0]
	assert.Equal(t, "ALPHA1", a.AffiliateCode)
	assert.Equal(t, alpha.OwnerID, a.OwnerID)
	assert.EqualValues(t, 4, a.TotalReferrals)
	assert.EqualValues(t, 1, a.PremiumReferrals)
	assert.Equal(t, 0.25, a.ConversionRate)
	assertMoney(t, "3.00", a.PendingCommissions)
	assertMoney(t, "3.00", a.PaidCommissions)
	assertMoney(t, "6.00", a.TotalCommissions)
	assertMoney(t, "6.00", a.CancelledCommissions)

	b := stats[1]
	assert.Equal(t, "BRAVO1", b.AffiliateCode)
	assert.EqualValues(t, 0, b.TotalReferrals)
	assert.Equal(t, 0.0, b.ConversionRate)
	assertMoney(t, "0.00", b.TotalCommissions)

	single, err := svc.Reports.AffiliateStatsFor(ctx, "alpha1", ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, a.AffiliateCode, single.AffiliateCode)
	assert.Equal(t, a.TotalReferrals, single.TotalReferrals)
	assertMoney(t, "6.00", single.TotalCommissions)

	_, err = svc.Reports.AffiliateStatsFor(ctx, "MISSING", ReportFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemReportAndDashboard(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alpha := createCode(t, svc, db, "ALPHA1", "30")
	createCode(t, svc, db, "BRAVO1", "10")
	_, err := svc.Registry.SetActive(ctx, "BRAVO1", false)
	require.NoError(t, err)

	u1 := referredUser(t, svc, db, "ALPHA1")
	referredUser(t, svc, db, "ALPHA1")
	convert(t, svc, u1, "tx_1", "10.00")

	sys, err := svc.Reports.SystemReport(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, sys.AffiliateCodes)
	assert.Equal(t, 1, sys.ActiveAffiliateCodes)
	assert.EqualValues(t, 2, sys.TotalReferrals)
	assert.EqualValues(t, 1, sys.PremiumReferrals)
	assert.Equal(t, 0.5, sys.ConversionRate)
	assertMoney(t, "3.00", sys.TotalCommissions)

	dash, err := svc.Reports.OwnerDashboard(ctx, alpha.OwnerID, ReportFilter{})
	require.NoError(t, err)
	require.Len(t, dash.Codes, 1)
	assert.Equal(t, "ALPHA1", dash.Codes[0].AffiliateCode)
	assertMoney(t, "3.00", dash.Summary.PendingCommissions)

	empty, err := svc.Reports.OwnerDashboard(ctx, uuid.New(), ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, empty.Codes)
	assert.Equal(t, 0.0, empty.Summary.ConversionRate)
}

func TestSystemReportWithoutData(t *testing.T) {
	svc, _ := newTestService(t)

	sys, err := svc.Reports.SystemReport(context.Background(), ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, sys.AffiliateCodes)
	assert.Equal(t, 0.0, sys.ConversionRate)
	assertMoney(t, "0.00", sys.TotalCommissions)
}

func TestReportDateRange(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	createCode(t, svc, db, "ALPHA1", "30")

	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	svc.Tracker.nowFn = fixedClock(jan)
	svc.Ledger.nowFn = fixedClock(jan)
	early := referredUser(t, svc, db, "ALPHA1")
	convert(t, svc, early, "tx_1", "10.00")

	feb := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	svc.Tracker.nowFn = fixedClock(feb)
	svc.Ledger.nowFn = fixedClock(feb)
	referredUser(t, svc, db, "ALPHA1")

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	stats, err := svc.Reports.AffiliateReport(ctx, ReportFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].TotalReferrals)
	assert.EqualValues(t, 0, stats[0].PremiumReferrals)
	assertMoney(t, "0.00", stats[0].TotalCommissions)
}

func TestExportAffiliateReport(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	createCode(t, svc, db, "ALPHA1", "30")
	u := referredUser(t, svc, db, "ALPHA1")
	convert(t, svc, u, "tx_1", "10.00")

	data, err := svc.Reports.ExportAffiliateReport(ctx, ReportFilter{})
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(affiliatesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Code", rows[0][0])
	assert.Equal(t, "ALPHA1", rows[1][0])
	assert.Equal(t, "1", rows[1][4])

	summary, err := book.GetRows(systemSheet)
	require.NoError(t, err)
	require.NotEmpty(t, summary)
	assert.Equal(t, "Generated At", summary[0][0])
}

func TestExportSummaryMatchesExportedRows(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	createCode(t, svc, db, "ALPHA1", "30")
	createCode(t, svc, db, "BRAVO1", "10")
	convert(t, svc, referredUser(t, svc, db, "ALPHA1"), "tx_1", "10.00")
	convert(t, svc, referredUser(t, svc, db, "BRAVO1"), "tx_2", "50.00")
	referredUser(t, svc, db, "BRAVO1")

	data, err := svc.Reports.ExportAffiliateReport(ctx, ReportFilter{Code: "bravo1"})
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(affiliatesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "BRAVO1", rows[1][0])

	summary, err := book.GetRows(systemSheet)
	require.NoError(t, err)
	values := make(map[string]string, len(summary))
	for _, line := range summary {
		require.Len(t, line, 2)
		values[line[0]] = line[1]
	}
	assert.Equal(t, "1", values["Affiliate Codes"])
	assert.Equal(t, rows[1][4], values["Referrals"])
	assert.Equal(t, rows[1][5], values["Premium"])
	assert.Equal(t, rows[1][7], values["Total Commissions"])
	assert.Equal(t, "5", values["Total Commissions"])
}

func TestAffiliateReportFailureIsReturned(t *testing.T) {
	svc, db := newTestService(t)
	createCode(t, svc, db, "ALPHA1", "30")
	require.NoError(t, db.Migrator().DropTable("commissions"))

	_, err := svc.Reports.AffiliateReport(context.Background(), ReportFilter{})
	assert.Error(t, err)
}
