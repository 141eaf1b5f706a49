package game

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const alphabet = "0123456789"

// Generate produces a hidden number for the given configuration.
// With AllowDuplicate each position is sampled independently; without it the
// result is a uniform draw of pairwise-distinct digits.
func Generate(cfg Config) (string, error) {
	if err := ValidateConfig(cfg); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(cfg.Digits)

	if cfg.AllowDuplicate {
		for i := 0; i < cfg.Digits; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", err
			}
			b.WriteByte(alphabet[n.Int64()])
		}
		return b.String(), nil
	}

	// sample without replacement from a shrinking pool
	pool := []byte(alphabet)
	for i := 0; i < cfg.Digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
		if err != nil {
			return "", err
		}
		k := int(n.Int64())
		b.WriteByte(pool[k])
		pool = append(pool[:k], pool[k+1:]...)
	}
	return b.String(), nil
}

// ValidateGuess checks input format against the configuration. Checks run in
// a fixed order and the first failure wins: length, digit characters, then
// duplicates. Secrets are validated with the same rules.
func ValidateGuess(input string, cfg Config) *ValidationError {
	if len(input) != cfg.Digits {
		return &ValidationError{Reason: WrongLength}
	}
	for i := 0; i < len(input); i++ {
		if input[i] < '0' || input[i] > '9' {
			return &ValidationError{Reason: NonDigitCharacter}
		}
	}
	if !cfg.AllowDuplicate {
		seen := map[byte]bool{}
		for i := 0; i < len(input); i++ {
			seen[input[i]] = true
		}
		if len(seen) < cfg.Digits {
			return &ValidationError{Reason: DuplicateNotAllowed}
		}
	}
	return nil
}
