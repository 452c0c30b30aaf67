// Package affiliate implements referral tracking and commission accounting:
// affiliate codes, referrals, the commission ledger, conversion reconciliation,
// payout settlement and reporting.
package affiliate

import (
	"github.com/fittrack/backend/internal/lock"
	"gorm.io/gorm"
)

// Service wires the affiliate components over one store
type Service struct {
	Registry   *Registry
	Tracker    *Tracker
	Ledger     *Ledger
	Reconciler *Reconciler
	Payouts    *PayoutProcessor
	Reports    *Reporter
}

// NewService creates every affiliate component. locker serializes reconciler
// calls per user; pass a lock.RedisLocker when several instances share the store.
func NewService(db *gorm.DB, locker lock.Locker, cfg RegistryConfig) *Service {
	registry := NewRegistry(db, cfg)
	ledger := NewLedger(db)
	return &Service{
		Registry:   registry,
		Tracker:    NewTracker(db, registry),
		Ledger:     ledger,
		Reconciler: NewReconciler(db, ledger, locker),
		Payouts:    NewPayoutProcessor(db, ledger),
		Reports:    NewReporter(db, ledger),
	}
}
