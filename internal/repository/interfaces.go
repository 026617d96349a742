package repository

import (
	"context"
	"errors"
	"time"

	"github.com/atmsys/atm-backend/internal/models"
)

// ErrNotFound is returned by every implementation when a row does not
// exist, so services never depend on driver error types.
var ErrNotFound = errors.New("not found")

type Customers interface {
	Create(ctx context.Context, c models.Customer) (models.Customer, error)
	GetByID(ctx context.Context, id int64) (models.Customer, error)
}

type Accounts interface {
	Create(ctx context.Context, a models.Account) (models.Account, error)
	GetByID(ctx context.Context, id int64) (models.Account, error)
	UpdateBalance(ctx context.Context, id int64, balance int64) error
}

type Cards interface {
	Create(ctx context.Context, c models.Card) (models.Card, error)
	GetByID(ctx context.Context, id int64) (models.Card, error)
	GetByNumber(ctx context.Context, number string) (models.Card, error)
	// Update persists status, retry counter, PIN hash and daily usage.
	Update(ctx context.Context, c models.Card) error
	// Link records the card<->account pair; the relation carries nothing
	// beyond the pair itself and linking twice is a no-op.
	Link(ctx context.Context, cardID, accountID int64) error
	// ResetAllDailyUsage zeroes daily withdrawal usage on every card and
	// reports how many rows changed.
	ResetAllDailyUsage(ctx context.Context) (int64, error)
}

type TransactionFilter struct {
	AccountID *int64
	Type      string
	From, To  *time.Time
	Limit     int
}

type Transactions interface {
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)
	// ListByAccount returns up to limit transactions, newest first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error)
	List(ctx context.Context, f TransactionFilter) ([]models.Transaction, error)
}

type Inventory interface {
	// Get returns the singleton cash inventory row.
	Get(ctx context.Context) (models.AtmInventory, error)
	SetCash(ctx context.Context, cash int64) error
}

type Reconciliations interface {
	Create(ctx context.Context, r models.AtmReconciliation) (models.AtmReconciliation, error)
}

type AuditFilter struct {
	From, To *time.Time
	// CardID narrows to rows whose ActorID matches or whose action text
	// mentions the card. When nil, the security-relevant subset is
	// returned (PIN / lock / unlock / failure events).
	CardID *int64
	Limit  int
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
	List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error)
}

type Operators interface {
	Create(ctx context.Context, o models.Operator) (models.Operator, error)
	GetByUsername(ctx context.Context, username string) (models.Operator, error)
}

// Store groups the repositories plus the atomic execution primitive.
// WithinTx runs fn against a store view whose writes commit together or not
// at all, under serializable isolation (or an equivalent single-writer
// discipline); fn returning an error rolls everything back.
type Store interface {
	Customers() Customers
	Accounts() Accounts
	Cards() Cards
	Transactions() Transactions
	Inventory() Inventory
	Reconciliations() Reconciliations
	AuditLogs() AuditLogs
	Operators() Operators
	WithinTx(ctx context.Context, fn func(Store) error) error
}
