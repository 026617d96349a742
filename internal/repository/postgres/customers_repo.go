package postgres

import (
	"context"

	"github.com/atmsys/atm-backend/internal/models"
)

type customersRepo struct{ q Querier }

func (r *customersRepo) Create(ctx context.Context, c models.Customer) (models.Customer, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO customers(name, status) VALUES($1,$2) RETURNING id`,
		c.Name, c.Status,
	).Scan(&c.ID)
	return c, err
}

func (r *customersRepo) GetByID(ctx context.Context, id int64) (models.Customer, error) {
	var c models.Customer
	err := r.q.QueryRow(ctx,
		`SELECT id, name, status FROM customers WHERE id=$1`, id,
	).Scan(&c.ID, &c.Name, &c.Status)
	return c, notFound(err)
}
