package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atmsys/atm-backend/internal/auth"
	"github.com/atmsys/atm-backend/internal/errs"
	"github.com/atmsys/atm-backend/internal/models"
	"github.com/atmsys/atm-backend/internal/money"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

// OperatorService implements the administrative console operations: card
// state overrides, cash reconciliation, customer seeding and the reporting
// queries with their CSV exports. Every state change is attributed to the
// acting operator in the audit log.
type OperatorService struct {
	store    repo.Store
	validate *validator.Validate
}

func NewOperatorService(store repo.Store) *OperatorService {
	return &OperatorService{store: store, validate: validator.New()}
}

func cardNotFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errs.New(errs.NotFound, "card not found")
	}
	return err
}

// LockCard forces status=Locked regardless of the card's current state.
func (s *OperatorService) LockCard(ctx context.Context, cardID, operatorID int64, reason string) error {
	return s.store.WithinTx(ctx, func(st repo.Store) error {
		card, err := st.Cards().GetByID(ctx, cardID)
		if err != nil {
			return cardNotFound(err)
		}
		card.Status = models.CardLocked
		if err := st.Cards().Update(ctx, card); err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorOperator,
			ActorID:   operatorID,
			Action:    fmt.Sprintf("Lock card %d. Reason: %s", cardID, reason),
			CreatedAt: time.Now().UTC(),
		})
	})
}

// UnlockCard forces status=Active. The retry counter is left alone;
// ResetPinRetries is a separate operation.
func (s *OperatorService) UnlockCard(ctx context.Context, cardID, operatorID int64, reason string) error {
	return s.store.WithinTx(ctx, func(st repo.Store) error {
		card, err := st.Cards().GetByID(ctx, cardID)
		if err != nil {
			return cardNotFound(err)
		}
		card.Status = models.CardActive
		if err := st.Cards().Update(ctx, card); err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorOperator,
			ActorID:   operatorID,
			Action:    fmt.Sprintf("Unlock card %d. Reason: %s", cardID, reason),
			CreatedAt: time.Now().UTC(),
		})
	})
}

// ResetPinRetries zeroes the counter without touching status; calling it on
// an already-reset card is a harmless no-op apart from the audit row.
func (s *OperatorService) ResetPinRetries(ctx context.Context, cardID, operatorID int64) error {
	return s.store.WithinTx(ctx, func(st repo.Store) error {
		card, err := st.Cards().GetByID(ctx, cardID)
		if err != nil {
			return cardNotFound(err)
		}
		card.PinRetryCount = 0
		if err := st.Cards().Update(ctx, card); err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorOperator,
			ActorID:   operatorID,
			Action:    fmt.Sprintf("Reset PIN retries for card %d", cardID),
			CreatedAt: time.Now().UTC(),
		})
	})
}

type ReconcileRequest struct {
	AtmID       int64 `validate:"required"`
	CountedCash int64 `validate:"gte=0"`
	Notes       string
}

// Reconcile overwrites the recorded cash with the physical count and keeps
// the signed difference as an append-only trail. Shortages and overages are
// both recorded as-is.
func (s *OperatorService) Reconcile(ctx context.Context, req ReconcileRequest, operatorID int64) (models.AtmReconciliation, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.AtmReconciliation{}, errs.Wrap(errs.Validation, "invalid reconcile request", err)
	}

	var rec models.AtmReconciliation
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		inv, err := st.Inventory().Get(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errs.New(errs.NotFound, "ATM inventory not found")
			}
			return err
		}
		before := inv.CashAvailable
		diff := req.CountedCash - before

		if err := st.Inventory().SetCash(ctx, req.CountedCash); err != nil {
			return err
		}
		rec, err = st.Reconciliations().Create(ctx, models.AtmReconciliation{
			AtmID:            req.AtmID,
			CountedCash:      req.CountedCash,
			SystemCashBefore: before,
			Difference:       diff,
			Notes:            req.Notes,
			OperatorID:       operatorID,
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorOperator,
			ActorID:   operatorID,
			Action: fmt.Sprintf("Reconcile ATM %d. Counted: %s, Diff: %s",
				req.AtmID, money.Format(req.CountedCash), money.Format(diff)),
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return models.AtmReconciliation{}, err
	}
	return rec, nil
}

type SeedAccount struct {
	Type           string
	InitialBalance int64 `validate:"gte=0"`
}

type SeedRequest struct {
	CustomerName   string        `validate:"required"`
	Accounts       []SeedAccount `validate:"dive"`
	CardNumber     string
	Pin            string
	CardDailyLimit int64 `validate:"gte=0"`
}

type SeedResult struct {
	CustomerID int64            `json:"customer_id"`
	Accounts   []models.Account `json:"accounts"`
	CardID     *int64           `json:"card_id,omitempty"`
}

// SeedCustomer creates a customer with accounts and, optionally, a card
// linked to the first account, all in one transaction.
func (s *OperatorService) SeedCustomer(ctx context.Context, req SeedRequest, operatorID int64) (SeedResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return SeedResult{}, errs.Wrap(errs.Validation, "invalid seed request", err)
	}
	if req.CardNumber != "" && req.Pin != "" {
		if err := auth.ValidatePIN(req.Pin); err != nil {
			return SeedResult{}, errs.New(errs.Validation, err.Error())
		}
	}

	var result SeedResult
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		customer, err := st.Customers().Create(ctx, models.Customer{
			Name:   req.CustomerName,
			Status: models.CustomerActive,
		})
		if err != nil {
			return err
		}
		result.CustomerID = customer.ID

		for _, a := range req.Accounts {
			accType := a.Type
			if accType == "" {
				accType = "Checking"
			}
			acc, err := st.Accounts().Create(ctx, models.Account{
				CustomerID: customer.ID,
				Type:       accType,
				Balance:    a.InitialBalance,
			})
			if err != nil {
				return err
			}
			result.Accounts = append(result.Accounts, acc)
		}

		cardDesc := "none"
		if req.CardNumber != "" && req.Pin != "" {
			limit := req.CardDailyLimit
			if limit == 0 {
				limit = 100000 // 1000.00 default
			}
			card, err := st.Cards().Create(ctx, models.Card{
				CardNumber:           req.CardNumber,
				PinHash:              auth.HashPIN(req.Pin),
				Status:               models.CardActive,
				PinRetryCount:        0,
				DailyWithdrawalLimit: limit,
				CustomerID:           customer.ID,
			})
			if err != nil {
				return err
			}
			if len(result.Accounts) > 0 {
				if err := st.Cards().Link(ctx, card.ID, result.Accounts[0].ID); err != nil {
					return err
				}
			}
			result.CardID = &card.ID
			cardDesc = strconv.FormatInt(card.ID, 10)
		}

		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorOperator,
			ActorID:   operatorID,
			Action: fmt.Sprintf("Seeded customer '%s' id=%d accounts=%d cardId=%s",
				customer.Name, customer.ID, len(result.Accounts), cardDesc),
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return SeedResult{}, err
	}
	return result, nil
}

// ---- reporting queries ----

type TransactionQuery struct {
	From, To  *time.Time
	AccountID *int64
	Type      string
	Limit     int
}

func (s *OperatorService) ListTransactions(ctx context.Context, q TransactionQuery) ([]models.Transaction, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	return s.store.Transactions().List(ctx, repo.TransactionFilter{
		AccountID: q.AccountID,
		Type:      q.Type,
		From:      q.From,
		To:        q.To,
		Limit:     q.Limit,
	})
}

type SecurityLogQuery struct {
	From, To *time.Time
	CardID   *int64
	Limit    int
}

func (s *OperatorService) ListSecurityLogs(ctx context.Context, q SecurityLogQuery) ([]models.AuditLog, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	return s.store.AuditLogs().List(ctx, repo.AuditFilter{
		From:   q.From,
		To:     q.To,
		CardID: q.CardID,
		Limit:  q.Limit,
	})
}

type CashOutEvent struct {
	TransactionID int64     `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	Amount        int64     `json:"amount"`
	Reference     string    `json:"reference"`
	CreatedAt     time.Time `json:"created_at"`
}

// CashOutEvents lists withdrawals in the given window, newest first,
// capped at 1000 rows.
func (s *OperatorService) CashOutEvents(ctx context.Context, from, to *time.Time) ([]CashOutEvent, error) {
	txs, err := s.store.Transactions().List(ctx, repo.TransactionFilter{
		Type:  models.TxnWithdrawal,
		From:  from,
		To:    to,
		Limit: 1000,
	})
	if err != nil {
		return nil, err
	}
	out := make([]CashOutEvent, 0, len(txs))
	for _, t := range txs {
		out = append(out, CashOutEvent{
			TransactionID: t.ID,
			AccountID:     t.AccountID,
			Amount:        t.Amount,
			Reference:     t.Reference,
			CreatedAt:     t.CreatedAt,
		})
	}
	return out, nil
}

// ---- CSV exports ----

// ExportTransactionsCSV renders the transaction query as RFC4180 CSV.
func (s *OperatorService) ExportTransactionsCSV(ctx context.Context, q TransactionQuery) ([]byte, error) {
	if q.Limit <= 0 {
		q.Limit = 1000
	}
	txs, err := s.ListTransactions(ctx, q)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"TransactionId", "AccountId", "Type", "Amount", "BalanceAfter", "Reference", "CreatedAt"})
	for _, t := range txs {
		_ = w.Write([]string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.AccountID, 10),
			t.Type,
			money.Format(t.Amount),
			money.Format(t.BalanceAfter),
			t.Reference,
			t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportSecurityLogsCSV renders the security-log query as RFC4180 CSV.
func (s *OperatorService) ExportSecurityLogsCSV(ctx context.Context, q SecurityLogQuery) ([]byte, error) {
	if q.Limit <= 0 {
		q.Limit = 1000
	}
	logs, err := s.ListSecurityLogs(ctx, q)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Id", "ActorType", "ActorId", "Action", "CreatedAt"})
	for _, l := range logs {
		_ = w.Write([]string{
			strconv.FormatInt(l.ID, 10),
			l.ActorType,
			strconv.FormatInt(l.ActorID, 10),
			l.Action,
			l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
