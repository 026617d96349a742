package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and parses the session claims handed to callers after
// a login transaction has committed. Signature validation of inbound tokens
// is the only verification the HTTP layer performs; the engine itself trusts
// the identity context it is given.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

type Claims struct {
	CardID     int64  `json:"cardId,omitempty"`
	CustomerID int64  `json:"customerId,omitempty"`
	OperatorID int64  `json:"operatorId,omitempty"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func (tm *TokenManager) issue(c Claims) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(tm.ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    tm.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// IssueCardholder returns a token asserting card id, customer id and the
// Cardholder role.
func (tm *TokenManager) IssueCardholder(cardID, customerID int64) (string, time.Time, error) {
	return tm.issue(Claims{CardID: cardID, CustomerID: customerID, Role: "Cardholder"})
}

// IssueOperator returns a token asserting operator id and role.
func (tm *TokenManager) IssueOperator(operatorID int64, role string) (string, time.Time, error) {
	return tm.issue(Claims{OperatorID: operatorID, Role: role})
}

func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
