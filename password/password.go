// Package password hashes local account passwords with argon2id and verifies
// both argon2id and legacy bcrypt hashes.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MinLength is the shortest accepted password.
const MinLength = 8

var (
	ErrTooShort    = errors.New("password: too short")
	ErrUnknownHash = errors.New("password: unrecognised hash format")
)

// Params defines Argon2id parameters.
type Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

func DefaultParams() Params {
	return Params{Time: 1, Memory: 64 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
}

// Validate enforces the minimum length.
func Validate(pw string) error {
	if len(pw) < MinLength {
		return ErrTooShort
	}
	return nil
}

// Hash returns a PHC-encoded argon2id hash.
func Hash(pw string) (string, error) {
	return HashWithParams(pw, DefaultParams())
}

func HashWithParams(pw string, p Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(pw), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(sum)), nil
}

// Verify checks pw against an argon2id or bcrypt hash.
func Verify(encoded, pw string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2id(encoded, pw)
	case IsBcryptHash(encoded):
		return VerifyBcrypt(encoded, pw)
	default:
		return false, ErrUnknownHash
	}
}

func verifyArgon2id(encoded, pw string) (bool, error) {
	p, salt, sum, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	dk := argon2.IDKey([]byte(pw), salt, p.Time, p.Memory, p.Threads, uint32(len(sum)))
	return subtle.ConstantTimeCompare(dk, sum) == 1, nil
}

// decodePHC parses $argon2id$v=19$m=65536,t=1,p=1$<salt>$<sum>.
func decodePHC(s string) (Params, []byte, []byte, error) {
	var p Params
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrUnknownHash
	}
	var m, t uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", ErrUnknownHash, err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", ErrUnknownHash, err)
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", ErrUnknownHash, err)
	}
	p = Params{Time: t, Memory: m, Threads: threads, SaltLen: uint32(len(salt)), KeyLen: uint32(len(sum))}
	return p, salt, sum, nil
}
