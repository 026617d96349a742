package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// PIN hashing is deterministic (same PIN, same stored value) so cards can be
// seeded with a precomputed hash. Verification is constant-time for both the
// PIN and password paths; hex case differences in stored hashes are
// tolerated.

var ErrInvalidPin = errors.New("PIN must be 4-6 digits, not sequential and not all identical")

const (
	ascendingRun  = "0123456789012345"
	descendingRun = "5432109876543210"
)

func HashPIN(pin string) string {
	if pin == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

func VerifyPIN(pin, storedHash string) bool {
	if pin == "" || storedHash == "" {
		return false
	}
	computed := HashPIN(pin)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(storedHash))) == 1
}

// ValidatePIN enforces the PIN policy: digits only, length 4-6, no fully
// ascending or descending runs, not all digits identical.
func ValidatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return ErrInvalidPin
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPin
		}
	}
	if strings.Contains(ascendingRun, pin) || strings.Contains(descendingRun, pin) {
		return ErrInvalidPin
	}
	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return ErrInvalidPin
	}
	return nil
}
