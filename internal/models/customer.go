package models

const (
	CustomerActive   = "Active"
	CustomerInactive = "Inactive"
)

type Customer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}
