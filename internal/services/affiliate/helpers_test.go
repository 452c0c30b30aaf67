package affiliate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fittrack/backend/internal/database"
	"github.com/fittrack/backend/internal/database/migrations"
	"github.com/fittrack/backend/internal/lock"
	"github.com/fittrack/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewService(db, lock.NewKeyedMutex(), RegistryConfig{MaxAttempts: 3, SuffixLength: 2}), db
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		DisplayName:  name,
		PasswordHash: "x",
		Role:         models.RoleUser,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// createCode provisions an explicit code at pct for a fresh owner
func createCode(t *testing.T, svc *Service, db *gorm.DB, code, pct string) *models.AffiliateCode {
	t.Helper()
	owner := createUser(t, db, "Owner "+code)
	ac, err := svc.Registry.CreateCode(context.Background(), CreateCodeInput{
		OwnerID:              owner.ID,
		CommissionPercentage: decimal.RequireFromString(pct),
		Code:                 code,
	})
	require.NoError(t, err)
	return ac
}

// referredUser creates a user bound to code
func referredUser(t *testing.T, svc *Service, db *gorm.DB, code string) uuid.UUID {
	t.Helper()
	u := createUser(t, db, "Member")
	_, err := svc.Tracker.RegisterReferral(context.Background(), u.ID, code)
	require.NoError(t, err)
	return u.ID
}

func convert(t *testing.T, svc *Service, userID uuid.UUID, eventID, gross string) *ConversionResult {
	t.Helper()
	res, err := svc.Reconciler.OnConversionEvent(context.Background(), ConversionEvent{
		UserID:              userID,
		SubscriptionEventID: eventID,
		GrossAmount:         decimal.RequireFromString(gross),
		IsConversion:        true,
	})
	require.NoError(t, err)
	return res
}

func cancel(t *testing.T, svc *Service, userID uuid.UUID) *ConversionResult {
	t.Helper()
	res, err := svc.Reconciler.OnConversionEvent(context.Background(), ConversionEvent{
		UserID:       userID,
		IsConversion: false,
	})
	require.NoError(t, err)
	return res
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.Equal(t, expected, actual.StringFixed(2))
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
