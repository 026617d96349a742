package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/atmsys/atm-backend/internal/models"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

func TestNotFoundSentinel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Accounts().GetByID(ctx, 99); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Cards().GetByNumber(ctx, "none"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Inventory().Get(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestWithinTxCommit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	err := s.WithinTx(ctx, func(st repo.Store) error {
		a, err := st.Accounts().Create(ctx, models.Account{CustomerID: 1, Type: "Checking", Balance: 1000})
		if err != nil {
			return err
		}
		return st.Accounts().UpdateBalance(ctx, a.ID, 500)
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Accounts().GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.Balance != 500 {
		t.Fatalf("balance=%d want 500", a.Balance)
	}
}

func TestWithinTxRollback(t *testing.T) {
	s := NewStore()
	s.SeedInventory(1, 10000)
	ctx := context.Background()
	if _, err := s.Accounts().Create(ctx, models.Account{CustomerID: 1, Balance: 2000}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(st repo.Store) error {
		if err := st.Accounts().UpdateBalance(ctx, 1, 0); err != nil {
			return err
		}
		if err := st.Inventory().SetCash(ctx, 0); err != nil {
			return err
		}
		if _, err := st.Transactions().Create(ctx, models.Transaction{AccountID: 1, Amount: 2000}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	a, _ := s.Accounts().GetByID(ctx, 1)
	if a.Balance != 2000 {
		t.Fatalf("balance mutated after rollback: %d", a.Balance)
	}
	inv, _ := s.Inventory().Get(ctx)
	if inv.CashAvailable != 10000 {
		t.Fatalf("inventory mutated after rollback: %d", inv.CashAvailable)
	}
	if n := len(s.AllTransactions()); n != 0 {
		t.Fatalf("transactions leaked after rollback: %d", n)
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.Cards().Link(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Cards().Link(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
}

func TestResetAllDailyUsage(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Cards().Create(ctx, models.Card{CardNumber: string(rune('a' + i)), DailyWithdrawalUsed: int64(i) * 100}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Cards().ResetAllDailyUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 { // card with zero usage untouched
		t.Fatalf("reset %d cards, want 2", n)
	}
	n, err = s.Cards().ResetAllDailyUsage(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second reset: n=%d err=%v", n, err)
	}
}
