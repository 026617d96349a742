package models

import "time"

const (
	OperatorRole   = "Operator"
	CardholderRole = "Cardholder"

	OperatorActive = "Active"
)

type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	PasswordSalt []byte    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
