package migrations

import (
	"github.com/fittrack/backend/internal/models"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createCommissionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_commissions_table",
		Migrate: func(tx *gorm.DB) error {
			// unique index on subscription_event_id backs the idempotent insert
			return tx.Migrator().CreateTable(&models.Commission{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("commissions")
		},
	}
}
