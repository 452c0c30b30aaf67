package migrations

import (
	"github.com/fittrack/backend/internal/models"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createAffiliateCodesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_affiliate_codes_table",
		Migrate: func(tx *gorm.DB) error {
			// code is the primary key and is always stored upper-cased
			return tx.Migrator().CreateTable(&models.AffiliateCode{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("affiliate_codes")
		},
	}
}
