package models

import "time"

// AtmInventory is a singleton row per physical ATM tracking available cash.
// It is guarded by the same transaction discipline as account balances,
// never by in-process state.
type AtmInventory struct {
	ID            int64     `json:"id"`
	AtmID         int64     `json:"atm_id"`
	CashAvailable int64     `json:"cash_available"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AtmReconciliation is an append-only record of a physical cash count.
// Difference = CountedCash - SystemCashBefore; shortages and overages are
// both recorded as-is.
type AtmReconciliation struct {
	ID               int64     `json:"id"`
	AtmID            int64     `json:"atm_id"`
	CountedCash      int64     `json:"counted_cash"`
	SystemCashBefore int64     `json:"system_cash_before"`
	Difference       int64     `json:"difference"`
	Notes            string    `json:"notes"`
	OperatorID       int64     `json:"operator_id"`
	CreatedAt        time.Time `json:"created_at"`
}
