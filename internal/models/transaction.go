package models

import "time"

const (
	TxnWithdrawal  = "Withdrawal"
	TxnDeposit     = "Deposit"
	TxnTransferOut = "Transfer-Out"
	TxnTransferIn  = "Transfer-In"
)

// Transaction is immutable once created. Both legs of a transfer share one
// Reference so they can be correlated later.
type Transaction struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}
