package models

// Account balance is held in minor units (cents); it never goes negative
// through a committed ledger operation.
type Account struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	Type       string `json:"type"` // free-form label, e.g. Checking, Savings
	Balance    int64  `json:"balance"`
}
