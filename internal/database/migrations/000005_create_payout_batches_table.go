package migrations

import (
	"github.com/fittrack/backend/internal/models"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createPayoutBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_payout_batches_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&models.PayoutBatch{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("payout_batches")
		},
	}
}
