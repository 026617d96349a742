package postgres

import (
	"context"

	"github.com/atmsys/atm-backend/internal/models"
)

type operatorsRepo struct{ q Querier }

func (r *operatorsRepo) Create(ctx context.Context, o models.Operator) (models.Operator, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO operators(username, password_hash, password_salt, role, status, created_at)
		 VALUES($1,$2,$3,$4,$5,$6) RETURNING id`,
		o.Username, o.PasswordHash, o.PasswordSalt, o.Role, o.Status, o.CreatedAt,
	).Scan(&o.ID)
	return o, err
}

func (r *operatorsRepo) GetByUsername(ctx context.Context, username string) (models.Operator, error) {
	var o models.Operator
	err := r.q.QueryRow(ctx,
		`SELECT id, username, password_hash, password_salt, role, status, created_at
		   FROM operators WHERE username=$1`, username,
	).Scan(&o.ID, &o.Username, &o.PasswordHash, &o.PasswordSalt, &o.Role, &o.Status, &o.CreatedAt)
	return o, notFound(err)
}
