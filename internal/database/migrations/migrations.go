package migrations

import (
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// migrationsList holds all migrations in the order they are applied
var migrationsList = []*gormigrate.Migration{
	createUsersTable(),
	createAffiliateCodesTable(),
	createReferralsTable(),
	createCommissionsTable(),
	createPayoutBatchesTable(),
}

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)
}

// Run applies every pending migration
func Run(db *gorm.DB) error {
	if err := newMigrator(db).Migrate(); err != nil {
		slog.Error("could not migrate", "error", err)
		return err
	}
	slog.Info("migrations ran successfully", "count", len(migrationsList))
	return nil
}

// RollbackLast reverts the most recently applied migration
func RollbackLast(db *gorm.DB) error {
	return newMigrator(db).RollbackLast()
}
