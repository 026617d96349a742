package postgres

import (
	"context"

	"github.com/atmsys/atm-backend/internal/models"
)

type accountsRepo struct{ q Querier }

func (r *accountsRepo) Create(ctx context.Context, a models.Account) (models.Account, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO accounts(customer_id, type, balance) VALUES($1,$2,$3) RETURNING id`,
		a.CustomerID, a.Type, a.Balance,
	).Scan(&a.ID)
	return a, err
}

func (r *accountsRepo) GetByID(ctx context.Context, id int64) (models.Account, error) {
	var a models.Account
	err := r.q.QueryRow(ctx,
		`SELECT id, customer_id, type, balance FROM accounts WHERE id=$1`, id,
	).Scan(&a.ID, &a.CustomerID, &a.Type, &a.Balance)
	return a, notFound(err)
}

func (r *accountsRepo) UpdateBalance(ctx context.Context, id int64, balance int64) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE accounts SET balance=$2 WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundRow()
	}
	return nil
}
