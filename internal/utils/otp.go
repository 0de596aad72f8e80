package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPDigits is the length of a registration code.
const OTPDigits = 6

// NewOTP returns a uniformly random numeric code of OTPDigits digits,
// zero padded.
func NewOTP() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}
