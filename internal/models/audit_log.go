package models

import "time"

const (
	ActorCard     = "Card"
	ActorOperator = "Operator"
	ActorSystem   = "System"
)

// AuditLog rows are append-only; the engine never mutates or deletes them.
type AuditLog struct {
	ID        int64     `json:"id"`
	ActorType string    `json:"actor_type"`
	ActorID   int64     `json:"actor_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
