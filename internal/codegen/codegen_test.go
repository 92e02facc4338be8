package codegen

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeRe = regexp.MustCompile(`^[a-zA-Z0-9]{6}$`)

func TestNew(t *testing.T) {
	g, err := New("")
	require.NoError(t, err)
	assert.IsType(t, RandomGenerator{}, g)

	g, err = New("UUID")
	require.NoError(t, err)
	assert.IsType(t, UUIDGenerator{}, g)

	_, err = New("snowflake")
	assert.Error(t, err)
}

func TestGenerators_Shape(t *testing.T) {
	for _, strategy := range []string{StrategyRandom, StrategyUUID} {
		t.Run(strategy, func(t *testing.T) {
			g, err := New(strategy)
			require.NoError(t, err)
			for i := 0; i < 500; i++ {
				assert.Regexp(t, codeRe, g.GenerateCode())
			}
		})
	}
}

func TestUUIDGenerator_HexOnly(t *testing.T) {
	hex := regexp.MustCompile(`^[0-9a-f]{6}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, hex, UUIDGenerator{}.GenerateCode())
	}
}

func TestRandomGenerator_Concurrent(t *testing.T) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				code := RandomGenerator{}.GenerateCode()
				mu.Lock()
				seen[code] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	// 62^6 codes; a handful of collisions among 800 draws would point at a broken source
	assert.Greater(t, len(seen), 790)
}
