package storage

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amounts are stored as base-unit decimal strings.

func EncodeAmount(a *uint256.Int) []byte {
	if a == nil {
		return []byte("0")
	}
	return []byte(a.Dec())
}

func DecodeAmount(b []byte) (*uint256.Int, error) {
	a, err := uint256.FromDecimal(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", b, err)
	}
	return a, nil
}
