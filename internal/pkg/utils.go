package pkg

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const matchCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var ErrInvalidCodeLength = errors.New("code length must be positive")

// GenerateMatchCode - generates a short shareable match code from A-Z and 0-9.
func GenerateMatchCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidCodeLength, length)
	}

	alphabetSize := big.NewInt(int64(len(matchCodeAlphabet)))

	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to read random number: %w", err)
		}

		code[i] = matchCodeAlphabet[n.Int64()]
	}

	return string(code), nil
}
