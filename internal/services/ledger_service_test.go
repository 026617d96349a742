package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atmsys/atm-backend/internal/auth"
	"github.com/atmsys/atm-backend/internal/errs"
	"github.com/atmsys/atm-backend/internal/models"
	"github.com/atmsys/atm-backend/internal/repository/memory"
)

type ledgerEnv struct {
	svc     *LedgerService
	store   *memory.Store
	account models.Account
	card    models.Card
}

// newLedgerEnv seeds one customer with a 2000.00 checking account, an
// active card and an ATM holding 10000.00.
func newLedgerEnv(t *testing.T) ledgerEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	store.SeedInventory(1, 1000000)

	cust, err := store.Customers().Create(ctx, models.Customer{Name: "Alice", Status: models.CustomerActive})
	if err != nil {
		t.Fatal(err)
	}
	acc, err := store.Accounts().Create(ctx, models.Account{CustomerID: cust.ID, Type: "Checking", Balance: 200000})
	if err != nil {
		t.Fatal(err)
	}
	card, err := store.Cards().Create(ctx, models.Card{
		CardNumber:           "4000111122223333",
		PinHash:              auth.HashPIN("1234"),
		Status:               models.CardActive,
		DailyWithdrawalLimit: 1000000,
		CustomerID:           cust.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Cards().Link(ctx, card.ID, acc.ID); err != nil {
		t.Fatal(err)
	}
	return ledgerEnv{svc: NewLedgerService(store), store: store, account: acc, card: card}
}

func (e ledgerEnv) withdrawReq(amount int64) WithdrawRequest {
	return WithdrawRequest{
		AccountID:  e.account.ID,
		Amount:     amount,
		CardID:     e.card.ID,
		CustomerID: e.account.CustomerID,
	}
}

func TestWithdrawHappyPath(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	txn, err := e.svc.Withdraw(ctx, e.withdrawReq(50000))
	if err != nil {
		t.Fatal(err)
	}
	if txn.Type != models.TxnWithdrawal || txn.Amount != 50000 || txn.BalanceAfter != 150000 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if !strings.HasPrefix(txn.Reference, "TRX-") {
		t.Fatalf("bad reference %q", txn.Reference)
	}

	acc, _ := e.store.Accounts().GetByID(ctx, e.account.ID)
	if acc.Balance != 150000 {
		t.Fatalf("balance = %d, want 150000", acc.Balance)
	}
	inv, _ := e.store.Inventory().Get(ctx)
	if inv.CashAvailable != 950000 {
		t.Fatalf("atm cash = %d, want 950000", inv.CashAvailable)
	}
	card, _ := e.store.Cards().GetByID(ctx, e.card.ID)
	if card.DailyWithdrawalUsed != 50000 {
		t.Fatalf("daily usage = %d, want 50000", card.DailyWithdrawalUsed)
	}

	var found bool
	for _, l := range e.store.AllAuditLogs() {
		if l.Action == "Withdraw 500.00 from Account 1" && l.ActorType == models.ActorCard {
			found = true
		}
	}
	if !found {
		t.Fatal("withdraw audit row missing")
	}
}

func TestWithdrawInsufficientFundsRollsBack(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	_, err := e.svc.Withdraw(ctx, e.withdrawReq(250000))
	if !errs.IsKind(err, errs.Conflict) {
		t.Fatalf("want Conflict, got %v", err)
	}

	acc, _ := e.store.Accounts().GetByID(ctx, e.account.ID)
	inv, _ := e.store.Inventory().Get(ctx)
	if acc.Balance != 200000 || inv.CashAvailable != 1000000 {
		t.Fatalf("state changed on failed withdraw: balance=%d atm=%d", acc.Balance, inv.CashAvailable)
	}
	if n := len(e.store.AllTransactions()); n != 0 {
		t.Fatalf("got %d transactions, want 0", n)
	}
}

func TestWithdrawInsufficientAtmCash(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()
	e.store.SeedInventory(1, 10000) // 100.00 left in the ATM

	_, err := e.svc.Withdraw(ctx, e.withdrawReq(50000))
	if !errs.IsKind(err, errs.Conflict) {
		t.Fatalf("want Conflict, got %v", err)
	}
	acc, _ := e.store.Accounts().GetByID(ctx, e.account.ID)
	if acc.Balance != 200000 {
		t.Fatalf("balance changed: %d", acc.Balance)
	}
}

func TestWithdrawDailyLimit(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	card, _ := e.store.Cards().GetByID(ctx, e.card.ID)
	card.DailyWithdrawalLimit = 60000
	if err := e.store.Cards().Update(ctx, card); err != nil {
		t.Fatal(err)
	}

	if _, err := e.svc.Withdraw(ctx, e.withdrawReq(50000)); err != nil {
		t.Fatal(err)
	}
	_, err := e.svc.Withdraw(ctx, e.withdrawReq(20000))
	if !errs.IsKind(err, errs.Conflict) {
		t.Fatalf("want Conflict on limit breach, got %v", err)
	}
	// a smaller amount still fits under the limit
	if _, err := e.svc.Withdraw(ctx, e.withdrawReq(10000)); err != nil {
		t.Fatal(err)
	}
}

func TestWithdrawForeignAccount(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	req := e.withdrawReq(10000)
	req.CustomerID = 999
	_, err := e.svc.Withdraw(ctx, req)
	if !errs.IsKind(err, errs.Forbidden) {
		t.Fatalf("want Forbidden, got %v", err)
	}
}

func TestWithdrawValidation(t *testing.T) {
	e := newLedgerEnv(t)
	_, err := e.svc.Withdraw(context.Background(), e.withdrawReq(-100))
	if !errs.IsKind(err, errs.Validation) {
		t.Fatalf("want Validation, got %v", err)
	}
}

func TestDepositDoesNotTouchAtmCash(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	txn, err := e.svc.Deposit(ctx, DepositRequest{
		AccountID:  e.account.ID,
		Amount:     30000,
		CardID:     e.card.ID,
		CustomerID: e.account.CustomerID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if txn.Type != models.TxnDeposit || txn.BalanceAfter != 230000 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	inv, _ := e.store.Inventory().Get(ctx)
	if inv.CashAvailable != 1000000 {
		t.Fatalf("deposit changed ATM cash: %d", inv.CashAvailable)
	}
}

func TestTransferLegsShareReference(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	second, err := e.store.Accounts().Create(ctx, models.Account{
		CustomerID: e.account.CustomerID, Type: "Savings", Balance: 500000,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.svc.Transfer(ctx, TransferRequest{
		FromAccountID: e.account.ID,
		ToAccountID:   second.ID,
		Amount:        30000,
		CardID:        e.card.ID,
		CustomerID:    e.account.CustomerID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != models.TxnTransferOut || out.BalanceAfter != 170000 {
		t.Fatalf("unexpected out leg: %+v", out)
	}

	from, _ := e.store.Accounts().GetByID(ctx, e.account.ID)
	to, _ := e.store.Accounts().GetByID(ctx, second.ID)
	if from.Balance != 170000 || to.Balance != 530000 {
		t.Fatalf("balances = %d/%d, want 170000/530000", from.Balance, to.Balance)
	}

	txns := e.store.AllTransactions()
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	if txns[0].Reference != txns[1].Reference {
		t.Fatalf("legs have different references: %q vs %q", txns[0].Reference, txns[1].Reference)
	}
	var in models.Transaction
	for _, tx := range txns {
		if tx.Type == models.TxnTransferIn {
			in = tx
		}
	}
	if in.AccountID != second.ID || in.BalanceAfter != 530000 {
		t.Fatalf("unexpected in leg: %+v", in)
	}
}

func TestTransferSameAccount(t *testing.T) {
	e := newLedgerEnv(t)
	_, err := e.svc.Transfer(context.Background(), TransferRequest{
		FromAccountID: e.account.ID,
		ToAccountID:   e.account.ID,
		Amount:        1000,
		CardID:        e.card.ID,
		CustomerID:    e.account.CustomerID,
	})
	if !errs.IsKind(err, errs.Validation) {
		t.Fatalf("want Validation, got %v", err)
	}
}

func TestTransferAcrossCustomers(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	other, _ := e.store.Customers().Create(ctx, models.Customer{Name: "Bob", Status: models.CustomerActive})
	foreign, _ := e.store.Accounts().Create(ctx, models.Account{CustomerID: other.ID, Type: "Checking", Balance: 10000})

	_, err := e.svc.Transfer(ctx, TransferRequest{
		FromAccountID: e.account.ID,
		ToAccountID:   foreign.ID,
		Amount:        1000,
		CardID:        e.card.ID,
		CustomerID:    e.account.CustomerID,
	})
	if !errs.IsKind(err, errs.Forbidden) {
		t.Fatalf("want Forbidden, got %v", err)
	}
	if n := len(e.store.AllTransactions()); n != 0 {
		t.Fatalf("failed transfer left %d transactions", n)
	}
}

func TestGetBalanceHidesForeignAccounts(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	if _, err := e.svc.GetBalance(ctx, e.account.ID, e.account.CustomerID); err != nil {
		t.Fatal(err)
	}
	_, err := e.svc.GetBalance(ctx, e.account.ID, 999)
	if !errs.IsKind(err, errs.NotFound) {
		t.Fatalf("foreign account: want NotFound, got %v", err)
	}
	_, err = e.svc.GetBalance(ctx, 12345, e.account.CustomerID)
	if !errs.IsKind(err, errs.NotFound) {
		t.Fatalf("missing account: want NotFound, got %v", err)
	}
}

func TestMiniStatementOrderingAndClamp(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		_, err := e.store.Transactions().Create(ctx, models.Transaction{
			AccountID:    e.account.ID,
			Type:         models.TxnDeposit,
			Amount:       int64(100 * (i + 1)),
			BalanceAfter: 200000,
			Reference:    "TRX-test",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// count<=0 defaults to 10, newest first
	txns, err := e.svc.MiniStatement(ctx, e.account.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 10 {
		t.Fatalf("got %d rows, want 10", len(txns))
	}
	if txns[0].Amount != 1500 || txns[9].Amount != 600 {
		t.Fatalf("wrong ordering: first=%d last=%d", txns[0].Amount, txns[9].Amount)
	}
	for i := 1; i < len(txns); i++ {
		if txns[i].CreatedAt.After(txns[i-1].CreatedAt) {
			t.Fatal("statement not in descending time order")
		}
	}

	// oversized count clamps to 100 and returns what exists
	txns, err = e.svc.MiniStatement(ctx, e.account.ID, 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 15 {
		t.Fatalf("got %d rows, want 15", len(txns))
	}

	if _, err := e.svc.MiniStatement(ctx, 999, 10); !errs.IsKind(err, errs.NotFound) {
		t.Fatalf("want NotFound for missing account, got %v", err)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	if err := e.store.Accounts().UpdateBalance(ctx, e.account.ID, 100000); err != nil {
		t.Fatal(err)
	}

	const workers = 10
	var wg sync.WaitGroup
	errsCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Withdraw(ctx, e.withdrawReq(20000))
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	var succeeded int
	for err := range errsCh {
		if err == nil {
			succeeded++
		}
	}
	if succeeded == 0 || succeeded > 5 {
		t.Fatalf("%d withdrawals succeeded, want 1..5", succeeded)
	}

	acc, _ := e.store.Accounts().GetByID(ctx, e.account.ID)
	if want := int64(100000 - 20000*succeeded); acc.Balance != want {
		t.Fatalf("balance = %d, want %d", acc.Balance, want)
	}
	if acc.Balance < 0 {
		t.Fatal("account overdrawn")
	}
}
