package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Password scheme names accepted by NewPasswordScheme.
const (
	SchemePlain  = "plain"
	SchemeBcrypt = "bcrypt"
)

// PasswordScheme decides how passwords are stored and compared.
type PasswordScheme interface {
	Hash(password string) (string, error)
	Compare(stored, password string) bool
}

// NewPasswordScheme returns the scheme registered under name.
func NewPasswordScheme(name string) (PasswordScheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SchemePlain:
		return PlainScheme{}, nil
	case SchemeBcrypt, "":
		return BcryptScheme{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", name)
	}
}

// PlainScheme stores passwords verbatim. Kept for databases created before
// hashing was introduced; not recommended.
type PlainScheme struct{}

func (PlainScheme) Hash(password string) (string, error) { return password, nil }

func (PlainScheme) Compare(stored, password string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// BcryptScheme stores bcrypt hashes.
type BcryptScheme struct {
	Cost int
}

func (s BcryptScheme) Hash(password string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptScheme) Compare(stored, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
