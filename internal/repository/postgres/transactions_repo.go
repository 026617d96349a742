package postgres

import (
	"context"
	"strconv"

	"github.com/atmsys/atm-backend/internal/models"
	repo "github.com/atmsys/atm-backend/internal/repository"
	"github.com/jackc/pgx/v5"
)

type transactionsRepo struct{ q Querier }

func (r *transactionsRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO transactions(account_id, type, amount, balance_after, reference, created_at)
		 VALUES($1,$2,$3,$4,$5,$6) RETURNING id`,
		t.AccountID, t.Type, t.Amount, t.BalanceAfter, t.Reference, t.CreatedAt,
	).Scan(&t.ID)
	return t, err
}

func (r *transactionsRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, account_id, type, amount, balance_after, reference, created_at
		   FROM transactions
		  WHERE account_id=$1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *transactionsRepo) List(ctx context.Context, f repo.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT id, account_id, type, amount, balance_after, reference, created_at
	            FROM transactions WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		query += " AND " + cond + "$" + strconv.Itoa(len(args))
	}
	if f.AccountID != nil {
		add("account_id=", *f.AccountID)
	}
	if f.Type != "" {
		add("type=", f.Type)
	}
	if f.From != nil {
		add("created_at>=", *f.From)
	}
	if f.To != nil {
		add("created_at<=", *f.To)
	}
	args = append(args, f.Limit)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
