package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// Codes are six digits drawn uniformly from 100000-999999. The leading
// digit is never zero, so every code renders at full width everywhere.
const (
	codeMin  = 100000
	codeSpan = 900000
)

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
