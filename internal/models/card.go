package models

const (
	CardActive = "Active"
	CardLocked = "Locked"
)

// MaxPinRetries is the number of consecutive failed PIN attempts after
// which a card transitions to Locked.
const MaxPinRetries = 3

type Card struct {
	ID                   int64  `json:"id"`
	CardNumber           string `json:"card_number"`
	PinHash              string `json:"-"`
	Status               string `json:"status"`
	PinRetryCount        int    `json:"pin_retry_count"`
	DailyWithdrawalLimit int64  `json:"daily_withdrawal_limit"`
	DailyWithdrawalUsed  int64  `json:"daily_withdrawal_used"`
	CustomerID           int64  `json:"customer_id"`
}
