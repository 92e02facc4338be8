// Package codegen produces candidate short codes. Codes are not guaranteed to be unique;
// callers probe the store and retry on collision.
package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"shortlink/internal/model"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	StrategyRandom = "random"
	StrategyUUID   = "uuid"
)

type Generator interface {
	GenerateCode() string
}

// New returns the generator registered under strategy.
func New(strategy string) (Generator, error) {
	switch strings.ToLower(strategy) {
	case "", StrategyRandom:
		return RandomGenerator{}, nil
	case StrategyUUID:
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown code generator %q", strategy)
	}
}

// RandomGenerator samples the alphabet uniformly.
type RandomGenerator struct{}

func (RandomGenerator) GenerateCode() string {
	var b strings.Builder
	b.Grow(model.ShortCodeLength)
	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < model.ShortCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(fmt.Sprintf("codegen: read random: %v", err))
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String()
}

// UUIDGenerator truncates a random UUID's hex form.
type UUIDGenerator struct{}

func (UUIDGenerator) GenerateCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:model.ShortCodeLength]
}
