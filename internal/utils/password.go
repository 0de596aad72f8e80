package utils

import "golang.org/x/crypto/bcrypt"

// Password length limits.  bcrypt only looks at the first 72 bytes, so
// longer inputs are refused instead of being silently truncated.
const (
	MinPasswordLen   = 8
	MaxPasswordBytes = 72
)

// HashPassword bcrypt-hashes a password or a one-time code.  A cost outside
// bcrypt's range falls back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
