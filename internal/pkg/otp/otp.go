// Package otp produces short verification codes for account flows.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultAlphabet mixes digits and upper-case letters.
const DefaultAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator issues codes of a fixed length drawn from an alphabet.
type Generator struct {
	length   int
	alphabet string
}

// NewGenerator returns a Generator. An empty alphabet selects DefaultAlphabet.
func NewGenerator(length int, alphabet string) *Generator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return &Generator{length: length, alphabet: alphabet}
}

// Generate returns a new random code.
func (g *Generator) Generate() (string, error) {
	b := make([]byte, g.length)
	max := big.NewInt(int64(len(g.alphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		b[i] = g.alphabet[idx.Int64()]
	}
	return string(b), nil
}
