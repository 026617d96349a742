package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

// Operator passwords use a salted, iterated KDF with a fixed-time
// comparison, unlike the deterministic PIN hash.
const (
	pwSaltSize   = 16
	pwKeySize    = 32
	pwIterations = 100_000
)

func HashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, pwSaltSize)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, err
	}
	hash = pbkdf2.Key([]byte(password), salt, pwIterations, pwKeySize, sha256.New)
	return hash, salt, nil
}

func VerifyPassword(password string, hash, salt []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	key := pbkdf2.Key([]byte(password), salt, pwIterations, pwKeySize, sha256.New)
	return subtle.ConstantTimeCompare(key, hash) == 1
}
