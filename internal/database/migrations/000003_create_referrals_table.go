package migrations

import (
	"github.com/fittrack/backend/internal/models"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createReferralsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_referrals_table",
		Migrate: func(tx *gorm.DB) error {
			// unique index on user_id: a user is referred at most once
			return tx.Migrator().CreateTable(&models.Referral{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("referrals")
		},
	}
}
