package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/atmsys/atm-backend/internal/auth"
	"github.com/atmsys/atm-backend/internal/errs"
	"github.com/atmsys/atm-backend/internal/models"
	"github.com/atmsys/atm-backend/internal/repository/memory"
)

const testCardNumber = "4000111122223333"

func newAuthEnv(t *testing.T) (*AuthService, *memory.Store, models.Card) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	cust, err := store.Customers().Create(ctx, models.Customer{Name: "Alice", Status: models.CustomerActive})
	if err != nil {
		t.Fatal(err)
	}
	card, err := store.Cards().Create(ctx, models.Card{
		CardNumber: testCardNumber,
		PinHash:    auth.HashPIN("1234"),
		Status:     models.CardActive,
		CustomerID: cust.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	tokens := auth.NewTokenManager("test-secret", "test", 15*time.Minute)
	return NewAuthService(store, tokens), store, card
}

func hasAudit(store *memory.Store, action string) bool {
	for _, l := range store.AllAuditLogs() {
		if l.Action == action {
			return true
		}
	}
	return false
}

func TestLoginSuccess(t *testing.T) {
	svc, store, _ := newAuthEnv(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, testCardNumber, "1234")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Token == "" || sess.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad session: %+v", sess)
	}
	if !hasAudit(store, "Successful login for CardId=1") {
		t.Fatal("success audit row missing")
	}
}

func TestLoginWrongPinIncrementsRetry(t *testing.T) {
	svc, store, card := newAuthEnv(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, testCardNumber, "9999")
	if !errs.IsKind(err, errs.Unauthorized) {
		t.Fatalf("want Unauthorized, got %v", err)
	}

	got, _ := store.Cards().GetByID(ctx, card.ID)
	if got.PinRetryCount != 1 || got.Status != models.CardActive {
		t.Fatalf("card after one failure: retries=%d status=%s", got.PinRetryCount, got.Status)
	}
	if !hasAudit(store, "Failed PIN attempt for CardId=1, RetryCount=1") {
		t.Fatal("failure audit row missing")
	}
}

func TestLoginLockoutAfterMaxRetries(t *testing.T) {
	svc, store, card := newAuthEnv(t)
	ctx := context.Background()

	for i := 0; i < models.MaxPinRetries; i++ {
		if _, err := svc.Login(ctx, testCardNumber, "9999"); !errs.IsKind(err, errs.Unauthorized) {
			t.Fatalf("attempt %d: want Unauthorized, got %v", i+1, err)
		}
	}

	got, _ := store.Cards().GetByID(ctx, card.ID)
	if got.Status != models.CardLocked || got.PinRetryCount != 3 {
		t.Fatalf("card not locked: retries=%d status=%s", got.PinRetryCount, got.Status)
	}
	if !hasAudit(store, "Card locked due to max PIN retries. CardId=1") {
		t.Fatal("lock audit row missing")
	}

	// the correct PIN no longer helps and the counter stays put
	if _, err := svc.Login(ctx, testCardNumber, "1234"); !errs.IsKind(err, errs.Unauthorized) {
		t.Fatalf("locked card login: want Unauthorized, got %v", err)
	}
	got, _ = store.Cards().GetByID(ctx, card.ID)
	if got.PinRetryCount != 3 {
		t.Fatalf("locked card retry count moved: %d", got.PinRetryCount)
	}
	if !hasAudit(store, "Login attempt to locked card "+testCardNumber) {
		t.Fatal("locked-attempt audit row missing")
	}
}

func TestLoginSuccessResetsRetryCounter(t *testing.T) {
	svc, store, card := newAuthEnv(t)
	ctx := context.Background()

	_, _ = svc.Login(ctx, testCardNumber, "9999")
	_, _ = svc.Login(ctx, testCardNumber, "9999")
	if _, err := svc.Login(ctx, testCardNumber, "1234"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Cards().GetByID(ctx, card.ID)
	if got.PinRetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", got.PinRetryCount)
	}
}

func TestLoginUnknownCard(t *testing.T) {
	svc, store, _ := newAuthEnv(t)

	_, err := svc.Login(context.Background(), "0000000000000000", "1234")
	if !errs.IsKind(err, errs.Unauthorized) {
		t.Fatalf("want Unauthorized, got %v", err)
	}
	// nothing to attribute the attempt to
	if n := len(store.AllAuditLogs()); n != 0 {
		t.Fatalf("unknown card produced %d audit rows", n)
	}
}

func TestChangePinWrongCurrent(t *testing.T) {
	svc, store, card := newAuthEnv(t)
	ctx := context.Background()

	err := svc.ChangePin(ctx, card.ID, "9999", "2468")
	if !errs.IsKind(err, errs.Unauthorized) {
		t.Fatalf("want Unauthorized, got %v", err)
	}
	if !hasAudit(store, "Failed PIN change attempt for CardId=1") {
		t.Fatal("failed change audit row missing")
	}
	// login retry counter is unaffected by change-pin failures
	got, _ := store.Cards().GetByID(ctx, card.ID)
	if got.PinRetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", got.PinRetryCount)
	}
	if _, err := svc.Login(ctx, testCardNumber, "1234"); err != nil {
		t.Fatal("old PIN should still work")
	}
}

func TestChangePinRejectsWeakNewPin(t *testing.T) {
	svc, store, card := newAuthEnv(t)
	ctx := context.Background()

	for _, pin := range []string{"12", "1111", "1234567", "abcd"} {
		if err := svc.ChangePin(ctx, card.ID, "1234", pin); !errs.IsKind(err, errs.Validation) {
			t.Fatalf("pin %q: want Validation, got %v", pin, err)
		}
	}
	// rejected attempts leave no trace
	for _, l := range store.AllAuditLogs() {
		if strings.Contains(l.Action, "PIN changed") {
			t.Fatal("unexpected PIN changed audit row")
		}
	}
}

func TestChangePinSuccess(t *testing.T) {
	svc, store, card := newAuthEnv(t)
	ctx := context.Background()

	if err := svc.ChangePin(ctx, card.ID, "1234", "2468"); err != nil {
		t.Fatal(err)
	}
	if !hasAudit(store, "PIN changed for CardId=1") {
		t.Fatal("change audit row missing")
	}
	if _, err := svc.Login(ctx, testCardNumber, "2468"); err != nil {
		t.Fatal("new PIN rejected after change")
	}
	if _, err := svc.Login(ctx, testCardNumber, "1234"); !errs.IsKind(err, errs.Unauthorized) {
		t.Fatal("old PIN still accepted after change")
	}
}

func TestOperatorLogin(t *testing.T) {
	svc, store, _ := newAuthEnv(t)
	ctx := context.Background()

	hash, salt, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	op, err := store.Operators().Create(ctx, models.Operator{
		Username:     "teller1",
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         models.OperatorRole,
		Status:       models.OperatorActive,
	})
	if err != nil {
		t.Fatal(err)
	}

	sess, err := svc.OperatorLogin(ctx, "teller1", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Token == "" {
		t.Fatal("empty token")
	}
	if !hasAudit(store, "Successful operator login for OperatorId=1") {
		t.Fatal("operator success audit row missing")
	}

	if _, err := svc.OperatorLogin(ctx, "teller1", "wrong"); !errs.IsKind(err, errs.Unauthorized) {
		t.Fatalf("bad password: want Unauthorized, got %v", err)
	}
	if _, err := svc.OperatorLogin(ctx, "ghost", "s3cret"); !errs.IsKind(err, errs.Unauthorized) {
		t.Fatalf("unknown operator: want Unauthorized, got %v", err)
	}
	if !hasAudit(store, "Failed operator login for username=teller1") {
		t.Fatal("operator failure audit row missing")
	}

	// operators have no lockout
	got, _ := store.Operators().GetByUsername(ctx, op.Username)
	if got.Status != models.OperatorActive {
		t.Fatalf("operator status = %s", got.Status)
	}
}
