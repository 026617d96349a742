package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmsys/atm-backend/internal/errs"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

// Querier is the slice of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same repository code runs inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    Querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Customers() repo.Customers             { return &customersRepo{q: s.q} }
func (s *Store) Accounts() repo.Accounts               { return &accountsRepo{q: s.q} }
func (s *Store) Cards() repo.Cards                     { return &cardsRepo{q: s.q} }
func (s *Store) Transactions() repo.Transactions       { return &transactionsRepo{q: s.q} }
func (s *Store) Inventory() repo.Inventory             { return &inventoryRepo{q: s.q} }
func (s *Store) Reconciliations() repo.Reconciliations { return &reconciliationsRepo{q: s.q} }
func (s *Store) AuditLogs() repo.AuditLogs             { return &auditLogsRepo{q: s.q} }
func (s *Store) Operators() repo.Operators             { return &operatorsRepo{q: s.q} }

// WithinTx runs fn in one serializable database transaction. Serialization
// failures and deadlocks surface as a Transient error so callers can retry.
func (s *Store) WithinTx(ctx context.Context, fn func(repo.Store) error) error {
	if s.pool == nil {
		// already inside a transaction; pgx has no savepoint need here
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return errs.Wrap(errs.Transient, "begin transaction", err)
	}
	inner := &Store{q: tx}
	if err := fn(inner); err != nil {
		_ = tx.Rollback(ctx)
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

// translate maps storage conflicts and timeouts to the Transient kind;
// everything else passes through untouched.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
			return errs.Wrap(errs.Transient, "storage conflict, retry", err)
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

func notFoundRow() error { return repo.ErrNotFound }
