package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// VerifyBcrypt checks pw against a bcrypt hash. A mismatch is (false, nil).
func VerifyBcrypt(hash, pw string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

// IsBcryptHash detects the $2a$, $2b$ and $2y$ prefixes.
func IsBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
