package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atmsys/atm-backend/internal/auth"
	"github.com/atmsys/atm-backend/internal/errs"
	"github.com/atmsys/atm-backend/internal/metrics"
	"github.com/atmsys/atm-backend/internal/models"
	repo "github.com/atmsys/atm-backend/internal/repository"
)

// AuthService owns the PIN retry/lockout state machine. Login never reveals
// which check failed: unknown card, locked card and wrong PIN all surface as
// the same Unauthorized error, while retry counters and audit rows still
// commit before it is returned.
type AuthService struct {
	store  repo.Store
	tokens *auth.TokenManager
}

func NewAuthService(store repo.Store, tokens *auth.TokenManager) *AuthService {
	return &AuthService{store: store, tokens: tokens}
}

type Session struct {
	Token     string
	ExpiresAt time.Time
}

var errAuthFailed = errs.New(errs.Unauthorized, "invalid card or PIN")

// Login verifies the PIN and advances the lockout state machine. State
// changes and their audit entries commit together before any token is
// issued, including on the failure paths.
func (s *AuthService) Login(ctx context.Context, cardNumber, pin string) (Session, error) {
	var (
		ok     bool
		cardID int64
		custID int64
	)
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		card, err := st.Cards().GetByNumber(ctx, cardNumber)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil // undifferentiated failure, nothing to record
			}
			return err
		}

		now := time.Now().UTC()
		if card.Status == models.CardLocked {
			// no PIN comparison happens for a locked card
			return st.AuditLogs().Create(ctx, models.AuditLog{
				ActorType: models.ActorCard,
				ActorID:   0,
				Action:    fmt.Sprintf("Login attempt to locked card %s", cardNumber),
				CreatedAt: now,
			})
		}

		if !auth.VerifyPIN(pin, card.PinHash) {
			card.PinRetryCount++
			if err := st.AuditLogs().Create(ctx, models.AuditLog{
				ActorType: models.ActorCard,
				ActorID:   card.ID,
				Action:    fmt.Sprintf("Failed PIN attempt for CardId=%d, RetryCount=%d", card.ID, card.PinRetryCount),
				CreatedAt: now,
			}); err != nil {
				return err
			}
			if card.PinRetryCount >= models.MaxPinRetries {
				card.Status = models.CardLocked
				if err := st.AuditLogs().Create(ctx, models.AuditLog{
					ActorType: models.ActorSystem,
					ActorID:   0,
					Action:    fmt.Sprintf("Card locked due to max PIN retries. CardId=%d", card.ID),
					CreatedAt: now,
				}); err != nil {
					return err
				}
				metrics.CardsLocked.Inc()
			}
			return st.Cards().Update(ctx, card)
		}

		if card.PinRetryCount != 0 {
			card.PinRetryCount = 0
			if err := st.Cards().Update(ctx, card); err != nil {
				return err
			}
		}
		if err := st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorCard,
			ActorID:   card.ID,
			Action:    fmt.Sprintf("Successful login for CardId=%d", card.ID),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		ok = true
		cardID, custID = card.ID, card.CustomerID
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if !ok {
		metrics.AuthFailures.Inc()
		return Session{}, errAuthFailed
	}

	token, exp, err := s.tokens.IssueCardholder(cardID, custID)
	if err != nil {
		return Session{}, errs.Wrap(errs.Internal, "issue token", err)
	}
	return Session{Token: token, ExpiresAt: exp}, nil
}

// ChangePin replaces the stored hash after verifying the current PIN. A
// wrong current PIN is audited but does not touch the login retry counter.
func (s *AuthService) ChangePin(ctx context.Context, cardID int64, currentPin, newPin string) error {
	var mismatch bool
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		card, err := st.Cards().GetByID(ctx, cardID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errs.New(errs.NotFound, "card not found")
			}
			return err
		}

		now := time.Now().UTC()
		if !auth.VerifyPIN(currentPin, card.PinHash) {
			mismatch = true
			return st.AuditLogs().Create(ctx, models.AuditLog{
				ActorType: models.ActorCard,
				ActorID:   cardID,
				Action:    fmt.Sprintf("Failed PIN change attempt for CardId=%d", cardID),
				CreatedAt: now,
			})
		}
		if err := auth.ValidatePIN(newPin); err != nil {
			return errs.New(errs.Validation, err.Error())
		}

		card.PinHash = auth.HashPIN(newPin)
		card.PinRetryCount = 0
		if err := st.Cards().Update(ctx, card); err != nil {
			return err
		}
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorCard,
			ActorID:   cardID,
			Action:    fmt.Sprintf("PIN changed for CardId=%d", cardID),
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	if mismatch {
		metrics.AuthFailures.Inc()
		return errs.New(errs.Unauthorized, "current PIN is incorrect")
	}
	return nil
}

// OperatorLogin authenticates an operator by password. Operators have no
// retry lockout; failures are audited only.
func (s *AuthService) OperatorLogin(ctx context.Context, username, password string) (Session, error) {
	var (
		ok   bool
		opID int64
		role string
	)
	err := s.store.WithinTx(ctx, func(st repo.Store) error {
		now := time.Now().UTC()
		op, err := st.Operators().GetByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return st.AuditLogs().Create(ctx, models.AuditLog{
					ActorType: models.ActorOperator,
					ActorID:   0,
					Action:    fmt.Sprintf("Failed operator login for username=%s", username),
					CreatedAt: now,
				})
			}
			return err
		}
		if op.Status != models.OperatorActive || !auth.VerifyPassword(password, op.PasswordHash, op.PasswordSalt) {
			return st.AuditLogs().Create(ctx, models.AuditLog{
				ActorType: models.ActorOperator,
				ActorID:   op.ID,
				Action:    fmt.Sprintf("Failed operator login for username=%s", username),
				CreatedAt: now,
			})
		}
		if err := st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorOperator,
			ActorID:   op.ID,
			Action:    fmt.Sprintf("Successful operator login for OperatorId=%d", op.ID),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		ok = true
		opID, role = op.ID, op.Role
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if !ok {
		metrics.AuthFailures.Inc()
		return Session{}, errs.New(errs.Unauthorized, "invalid credentials")
	}

	token, exp, err := s.tokens.IssueOperator(opID, role)
	if err != nil {
		return Session{}, errs.Wrap(errs.Internal, "issue token", err)
	}
	return Session{Token: token, ExpiresAt: exp}, nil
}
