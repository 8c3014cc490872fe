package util

import (
	"fmt"
	"math/big"
)

// base58Alphabet is the Bitcoin-style alphabet, matching the character
// set configs.isBase58 validates WALLET_SECRET against.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// DecodeBase58 decodes s into its big-endian byte representation,
// preserving leading-zero bytes as leading '1' characters per the
// standard base58 convention.
func DecodeBase58(s string) ([]byte, error) {
	index := make(map[rune]int64, len(base58Alphabet))
	for i, r := range base58Alphabet {
		index[r] = int64(i)
	}

	n := new(big.Int)
	base := big.NewInt(58)
	for _, r := range s {
		digit, ok := index[r]
		if !ok {
			return nil, fmt.Errorf("util: %q is not valid base58", string(r))
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(digit))
	}

	decoded := n.Bytes()

	leadingZeros := 0
	for _, r := range s {
		if r != '1' {
			break
		}
		leadingZeros++
	}

	out := make([]byte, leadingZeros+len(decoded))
	copy(out[leadingZeros:], decoded)
	return out, nil
}
