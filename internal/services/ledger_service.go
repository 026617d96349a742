package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atmsys/atm-backend/internal/errs"
	"github.com/atmsys/atm-backend/internal/metrics"
	"github.com/atmsys/atm-backend/internal/models"
	"github.com/atmsys/atm-backend/internal/money"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

// LedgerService executes the balance-mutating operations. Every mutation
// runs inside one Store.WithinTx so balances, ATM cash, the Transaction row
// and the AuditLog row commit together or not at all; isolation is the
// store's problem, not an in-process lock.
type LedgerService struct {
	store    repo.Store
	validate *validator.Validate
}

func NewLedgerService(store repo.Store) *LedgerService {
	return &LedgerService{store: store, validate: validator.New()}
}

type WithdrawRequest struct {
	AccountID  int64 `validate:"required"`
	Amount     int64 `validate:"required,gt=0"`
	CardID     int64 `validate:"required"`
	CustomerID int64 `validate:"required"`
}

type DepositRequest struct {
	AccountID  int64 `validate:"required"`
	Amount     int64 `validate:"required,gt=0"`
	CardID     int64 `validate:"required"`
	CustomerID int64 `validate:"required"`
}

type TransferRequest struct {
	FromAccountID int64 `validate:"required"`
	ToAccountID   int64 `validate:"required"`
	Amount        int64 `validate:"required,gt=0"`
	CardID        int64 `validate:"required"`
	CustomerID    int64 `validate:"required"`
}

func (s *LedgerService) invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			parts = append(parts, e.Field()+" is invalid")
		}
		return errs.New(errs.Validation, strings.Join(parts, "; "))
	}
	return errs.Wrap(errs.Validation, "invalid request", err)
}

// newReference derives a correlation id from the commit timestamp plus a
// short random suffix. Both legs of a transfer reuse one reference.
func newReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("TRX-%s-%s", now.UTC().Format("20060102150405"), suffix)
}

// Withdraw debits the account and the shared ATM cash counter.
func (s *LedgerService) Withdraw(ctx context.Context, req WithdrawRequest) (models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Transaction{}, s.invalid(err)
	}

	var created models.Transaction
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		account, err := st.Accounts().GetByID(ctx, req.AccountID)
		if err != nil {
			return accountErr(err)
		}
		if account.CustomerID != req.CustomerID {
			return errs.New(errs.Forbidden, "account does not belong to customer")
		}
		if account.Balance < req.Amount {
			return errs.New(errs.Conflict, "insufficient funds")
		}

		card, err := st.Cards().GetByID(ctx, req.CardID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errs.New(errs.NotFound, "card not found")
			}
			return err
		}
		if card.DailyWithdrawalLimit > 0 && card.DailyWithdrawalUsed+req.Amount > card.DailyWithdrawalLimit {
			return errs.New(errs.Conflict, "daily withdrawal limit exceeded")
		}

		inv, err := st.Inventory().Get(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errs.New(errs.NotFound, "ATM inventory not found")
			}
			return err
		}
		if inv.CashAvailable < req.Amount {
			return errs.New(errs.Conflict, "ATM has insufficient cash")
		}

		now := time.Now().UTC()
		if err := st.Accounts().UpdateBalance(ctx, account.ID, account.Balance-req.Amount); err != nil {
			return err
		}
		if err := st.Inventory().SetCash(ctx, inv.CashAvailable-req.Amount); err != nil {
			return err
		}
		card.DailyWithdrawalUsed += req.Amount
		if err := st.Cards().Update(ctx, card); err != nil {
			return err
		}

		created, err = st.Transactions().Create(ctx, models.Transaction{
			AccountID:    account.ID,
			Type:         models.TxnWithdrawal,
			Amount:       req.Amount,
			BalanceAfter: account.Balance - req.Amount,
			Reference:    newReference(now),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorCard,
			ActorID:   req.CardID,
			Action:    fmt.Sprintf("Withdraw %s from Account %d", money.Format(req.Amount), account.ID),
			CreatedAt: now,
		})
	})
	if err != nil {
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	metrics.TransactionsTotal.WithLabelValues("withdrawal").Inc()
	return created, nil
}

// Deposit credits the account. The ATM cash counter is untouched: deposited
// envelopes do not become dispensable cash.
func (s *LedgerService) Deposit(ctx context.Context, req DepositRequest) (models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Transaction{}, s.invalid(err)
	}

	var created models.Transaction
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		account, err := st.Accounts().GetByID(ctx, req.AccountID)
		if err != nil {
			return accountErr(err)
		}
		if account.CustomerID != req.CustomerID {
			return errs.New(errs.Forbidden, "account does not belong to customer")
		}

		now := time.Now().UTC()
		if err := st.Accounts().UpdateBalance(ctx, account.ID, account.Balance+req.Amount); err != nil {
			return err
		}
		created, err = st.Transactions().Create(ctx, models.Transaction{
			AccountID:    account.ID,
			Type:         models.TxnDeposit,
			Amount:       req.Amount,
			BalanceAfter: account.Balance + req.Amount,
			Reference:    newReference(now),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorCard,
			ActorID:   req.CardID,
			Action:    fmt.Sprintf("Deposit %s to Account %d", money.Format(req.Amount), account.ID),
			CreatedAt: now,
		})
	})
	if err != nil {
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	metrics.TransactionsTotal.WithLabelValues("deposit").Inc()
	return created, nil
}

// Transfer moves funds between two accounts of the same customer. Two
// transaction rows share one reference; the out leg is returned.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Transaction{}, s.invalid(err)
	}
	if req.FromAccountID == req.ToAccountID {
		return models.Transaction{}, errs.New(errs.Validation, "cannot transfer to the same account")
	}

	var outLeg models.Transaction
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		from, err := st.Accounts().GetByID(ctx, req.FromAccountID)
		if err != nil {
			return accountErr(err)
		}
		to, err := st.Accounts().GetByID(ctx, req.ToAccountID)
		if err != nil {
			return accountErr(err)
		}
		if from.CustomerID != req.CustomerID || to.CustomerID != req.CustomerID {
			return errs.New(errs.Forbidden, "accounts must belong to the same customer")
		}
		if from.Balance < req.Amount {
			return errs.New(errs.Conflict, "insufficient funds")
		}

		now := time.Now().UTC()
		reference := newReference(now)

		if err := st.Accounts().UpdateBalance(ctx, from.ID, from.Balance-req.Amount); err != nil {
			return err
		}
		if err := st.Accounts().UpdateBalance(ctx, to.ID, to.Balance+req.Amount); err != nil {
			return err
		}
		outLeg, err = st.Transactions().Create(ctx, models.Transaction{
			AccountID:    from.ID,
			Type:         models.TxnTransferOut,
			Amount:       req.Amount,
			BalanceAfter: from.Balance - req.Amount,
			Reference:    reference,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if _, err := st.Transactions().Create(ctx, models.Transaction{
			AccountID:    to.ID,
			Type:         models.TxnTransferIn,
			Amount:       req.Amount,
			BalanceAfter: to.Balance + req.Amount,
			Reference:    reference,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorCard,
			ActorID:   req.CardID,
			Action:    fmt.Sprintf("Transfer %s from %d to %d", money.Format(req.Amount), from.ID, to.ID),
			CreatedAt: now,
		})
	})
	if err != nil {
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	metrics.TransactionsTotal.WithLabelValues("transfer").Inc()
	return outLeg, nil
}

// GetBalance returns the account balance after an ownership check. A
// missing account and a foreign account look the same to the caller.
func (s *LedgerService) GetBalance(ctx context.Context, accountID, customerID int64) (models.Account, error) {
	account, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return models.Account{}, accountErr(err)
	}
	if account.CustomerID != customerID {
		return models.Account{}, errs.New(errs.NotFound, "account not found")
	}
	return account, nil
}

// MiniStatement returns up to count most recent transactions, newest first.
// count defaults to 10 and is clamped to [1,100].
func (s *LedgerService) MiniStatement(ctx context.Context, accountID int64, count int) ([]models.Transaction, error) {
	if count <= 0 {
		count = 10
	}
	if count > 100 {
		count = 100
	}
	if _, err := s.store.Accounts().GetByID(ctx, accountID); err != nil {
		return nil, accountErr(err)
	}
	return s.store.Transactions().ListByAccount(ctx, accountID, count)
}

func accountErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errs.New(errs.NotFound, "account not found")
	}
	return err
}
