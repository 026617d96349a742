package postgres

import (
	"context"
	"strconv"

	"github.com/atmsys/atm-backend/internal/models"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

type auditLogsRepo struct{ q Querier }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO audit_logs(actor_type, actor_id, action, created_at)
		 VALUES($1,$2,$3,$4)`,
		l.ActorType, l.ActorID, l.Action, l.CreatedAt)
	return err
}

func (r *auditLogsRepo) List(ctx context.Context, f repo.AuditFilter) ([]models.AuditLog, error) {
	query := `SELECT id, actor_type, actor_id, action, created_at
	            FROM audit_logs WHERE 1=1`
	var args []any
	add := func(cond string, v any) string {
		args = append(args, v)
		return cond + "$" + strconv.Itoa(len(args))
	}
	if f.From != nil {
		query += " AND " + add("created_at>=", *f.From)
	}
	if f.To != nil {
		query += " AND " + add("created_at<=", *f.To)
	}
	if f.CardID != nil {
		// Actions are free text, so card scoping matches the actor id or
		// the wordings the engine itself writes.
		idCond := add("actor_id=", *f.CardID)
		c1 := add("action LIKE ", "%CardId="+strconv.FormatInt(*f.CardID, 10)+"%")
		c2 := add("action LIKE ", "%card "+strconv.FormatInt(*f.CardID, 10)+"%")
		query += " AND (" + idCond + " OR " + c1 + " OR " + c2 + ")"
	} else {
		query += ` AND (action LIKE '%PIN%' OR lower(action) LIKE '%lock%'
		            OR lower(action) LIKE '%unlock%' OR lower(action) LIKE '%failed%')`
	}
	args = append(args, f.Limit)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorType, &l.ActorID, &l.Action, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
