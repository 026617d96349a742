// Package memory implements repository.Store entirely in memory for unit
// tests. One mutex serializes every operation, and WithinTx works
// copy-on-write: the fn mutates a clone of the state which replaces the
// original only if fn succeeds, so rollback is simply dropping the clone.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atmsys/atm-backend/internal/models"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

type state struct {
	seq             map[string]int64
	customers       map[int64]models.Customer
	accounts        map[int64]models.Account
	cards           map[int64]models.Card
	links           map[[2]int64]struct{}
	transactions    []models.Transaction
	inventory       *models.AtmInventory
	reconciliations []models.AtmReconciliation
	auditLogs       []models.AuditLog
	operators       map[int64]models.Operator
}

func newState() *state {
	return &state{
		seq:       map[string]int64{},
		customers: map[int64]models.Customer{},
		accounts:  map[int64]models.Account{},
		cards:     map[int64]models.Card{},
		links:     map[[2]int64]struct{}{},
		operators: map[int64]models.Operator{},
	}
}

func (st *state) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

func (st *state) clone() *state {
	cp := &state{
		seq:       make(map[string]int64, len(st.seq)),
		customers: make(map[int64]models.Customer, len(st.customers)),
		accounts:  make(map[int64]models.Account, len(st.accounts)),
		cards:     make(map[int64]models.Card, len(st.cards)),
		links:     make(map[[2]int64]struct{}, len(st.links)),
		operators: make(map[int64]models.Operator, len(st.operators)),
	}
	for k, v := range st.seq {
		cp.seq[k] = v
	}
	for k, v := range st.customers {
		cp.customers[k] = v
	}
	for k, v := range st.accounts {
		cp.accounts[k] = v
	}
	for k, v := range st.cards {
		cp.cards[k] = v
	}
	for k, v := range st.links {
		cp.links[k] = v
	}
	for k, v := range st.operators {
		cp.operators[k] = v
	}
	cp.transactions = append([]models.Transaction(nil), st.transactions...)
	cp.reconciliations = append([]models.AtmReconciliation(nil), st.reconciliations...)
	cp.auditLogs = append([]models.AuditLog(nil), st.auditLogs...)
	if st.inventory != nil {
		inv := *st.inventory
		cp.inventory = &inv
	}
	return cp
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

// SeedInventory creates the singleton cash row; in the postgres store the
// migration does this.
func (s *Store) SeedInventory(atmID, cash int64) {
	s.lock()
	defer s.unlock()
	s.st.inventory = &models.AtmInventory{
		ID: 1, AtmID: atmID, CashAvailable: cash, UpdatedAt: time.Now().UTC(),
	}
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(repo.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.st.clone()
	tx := &Store{mu: s.mu, st: cp, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = cp
	return nil
}

func (s *Store) Customers() repo.Customers             { return customersRepo{s} }
func (s *Store) Accounts() repo.Accounts               { return accountsRepo{s} }
func (s *Store) Cards() repo.Cards                     { return cardsRepo{s} }
func (s *Store) Transactions() repo.Transactions       { return transactionsRepo{s} }
func (s *Store) Inventory() repo.Inventory             { return inventoryRepo{s} }
func (s *Store) Reconciliations() repo.Reconciliations { return reconciliationsRepo{s} }
func (s *Store) AuditLogs() repo.AuditLogs             { return auditLogsRepo{s} }
func (s *Store) Operators() repo.Operators             { return operatorsRepo{s} }

// ---- customers ----

type customersRepo struct{ s *Store }

func (r customersRepo) Create(_ context.Context, c models.Customer) (models.Customer, error) {
	r.s.lock()
	defer r.s.unlock()
	c.ID = r.s.st.next("customers")
	r.s.st.customers[c.ID] = c
	return c, nil
}

func (r customersRepo) GetByID(_ context.Context, id int64) (models.Customer, error) {
	r.s.lock()
	defer r.s.unlock()
	c, ok := r.s.st.customers[id]
	if !ok {
		return models.Customer{}, repo.ErrNotFound
	}
	return c, nil
}

// ---- accounts ----

type accountsRepo struct{ s *Store }

func (r accountsRepo) Create(_ context.Context, a models.Account) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()
	a.ID = r.s.st.next("accounts")
	r.s.st.accounts[a.ID] = a
	return a, nil
}

func (r accountsRepo) GetByID(_ context.Context, id int64) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()
	a, ok := r.s.st.accounts[id]
	if !ok {
		return models.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (r accountsRepo) UpdateBalance(_ context.Context, id int64, balance int64) error {
	r.s.lock()
	defer r.s.unlock()
	a, ok := r.s.st.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.Balance = balance
	r.s.st.accounts[id] = a
	return nil
}

// ---- cards ----

type cardsRepo struct{ s *Store }

func (r cardsRepo) Create(_ context.Context, c models.Card) (models.Card, error) {
	r.s.lock()
	defer r.s.unlock()
	c.ID = r.s.st.next("cards")
	r.s.st.cards[c.ID] = c
	return c, nil
}

func (r cardsRepo) GetByID(_ context.Context, id int64) (models.Card, error) {
	r.s.lock()
	defer r.s.unlock()
	c, ok := r.s.st.cards[id]
	if !ok {
		return models.Card{}, repo.ErrNotFound
	}
	return c, nil
}

func (r cardsRepo) GetByNumber(_ context.Context, number string) (models.Card, error) {
	r.s.lock()
	defer r.s.unlock()
	for _, c := range r.s.st.cards {
		if c.CardNumber == number {
			return c, nil
		}
	}
	return models.Card{}, repo.ErrNotFound
}

func (r cardsRepo) Update(_ context.Context, c models.Card) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.st.cards[c.ID]; !ok {
		return repo.ErrNotFound
	}
	r.s.st.cards[c.ID] = c
	return nil
}

func (r cardsRepo) Link(_ context.Context, cardID, accountID int64) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.st.links[[2]int64{cardID, accountID}] = struct{}{}
	return nil
}

func (r cardsRepo) ResetAllDailyUsage(_ context.Context) (int64, error) {
	r.s.lock()
	defer r.s.unlock()
	var n int64
	for id, c := range r.s.st.cards {
		if c.DailyWithdrawalUsed != 0 {
			c.DailyWithdrawalUsed = 0
			r.s.st.cards[id] = c
			n++
		}
	}
	return n, nil
}

// ---- transactions ----

type transactionsRepo struct{ s *Store }

func (r transactionsRepo) Create(_ context.Context, t models.Transaction) (models.Transaction, error) {
	r.s.lock()
	defer r.s.unlock()
	t.ID = r.s.st.next("transactions")
	r.s.st.transactions = append(r.s.st.transactions, t)
	return t, nil
}

func sortNewestFirst(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func (r transactionsRepo) ListByAccount(_ context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []models.Transaction
	for _, t := range r.s.st.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r transactionsRepo) List(_ context.Context, f repo.TransactionFilter) ([]models.Transaction, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []models.Transaction
	for _, t := range r.s.st.transactions {
		if f.AccountID != nil && t.AccountID != *f.AccountID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, t)
	}
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ---- inventory ----

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) Get(_ context.Context) (models.AtmInventory, error) {
	r.s.lock()
	defer r.s.unlock()
	if r.s.st.inventory == nil {
		return models.AtmInventory{}, repo.ErrNotFound
	}
	return *r.s.st.inventory, nil
}

func (r inventoryRepo) SetCash(_ context.Context, cash int64) error {
	r.s.lock()
	defer r.s.unlock()
	if r.s.st.inventory == nil {
		return repo.ErrNotFound
	}
	r.s.st.inventory.CashAvailable = cash
	r.s.st.inventory.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- reconciliations ----

type reconciliationsRepo struct{ s *Store }

func (r reconciliationsRepo) Create(_ context.Context, rec models.AtmReconciliation) (models.AtmReconciliation, error) {
	r.s.lock()
	defer r.s.unlock()
	rec.ID = r.s.st.next("atm_reconciliations")
	r.s.st.reconciliations = append(r.s.st.reconciliations, rec)
	return rec, nil
}

// ---- audit logs ----

type auditLogsRepo struct{ s *Store }

func (r auditLogsRepo) Create(_ context.Context, l models.AuditLog) error {
	r.s.lock()
	defer r.s.unlock()
	l.ID = r.s.st.next("audit_logs")
	r.s.st.auditLogs = append(r.s.st.auditLogs, l)
	return nil
}

func (r auditLogsRepo) List(_ context.Context, f repo.AuditFilter) ([]models.AuditLog, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []models.AuditLog
	for _, l := range r.s.st.auditLogs {
		if f.From != nil && l.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && l.CreatedAt.After(*f.To) {
			continue
		}
		if f.CardID != nil {
			id := strconv.FormatInt(*f.CardID, 10)
			if l.ActorID != *f.CardID &&
				!strings.Contains(l.Action, "CardId="+id) &&
				!strings.Contains(l.Action, "card "+id) {
				continue
			}
		} else {
			lower := strings.ToLower(l.Action)
			if !strings.Contains(l.Action, "PIN") &&
				!strings.Contains(lower, "lock") &&
				!strings.Contains(lower, "unlock") &&
				!strings.Contains(lower, "failed") {
				continue
			}
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// AllAuditLogs returns every audit row in insertion order; test helper.
func (s *Store) AllAuditLogs() []models.AuditLog {
	s.lock()
	defer s.unlock()
	return append([]models.AuditLog(nil), s.st.auditLogs...)
}

// AllTransactions returns every transaction in insertion order; test helper.
func (s *Store) AllTransactions() []models.Transaction {
	s.lock()
	defer s.unlock()
	return append([]models.Transaction(nil), s.st.transactions...)
}

// ---- operators ----

type operatorsRepo struct{ s *Store }

func (r operatorsRepo) Create(_ context.Context, o models.Operator) (models.Operator, error) {
	r.s.lock()
	defer r.s.unlock()
	o.ID = r.s.st.next("operators")
	r.s.st.operators[o.ID] = o
	return o, nil
}

func (r operatorsRepo) GetByUsername(_ context.Context, username string) (models.Operator, error) {
	r.s.lock()
	defer r.s.unlock()
	for _, o := range r.s.st.operators {
		if o.Username == username {
			return o, nil
		}
	}
	return models.Operator{}, repo.ErrNotFound
}
