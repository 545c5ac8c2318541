package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OneTimeCodeDigits is the length of password reset codes.
const OneTimeCodeDigits = 6

// NewOneTimeCode returns a uniformly random decimal code of OneTimeCodeDigits digits.
func NewOneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", OneTimeCodeDigits, n.Int64()), nil
}
