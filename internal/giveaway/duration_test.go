package giveaway

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"60s":       time.Minute,
		"5m":        5 * time.Minute,
		"3min2s":    3*time.Minute + 2*time.Second,
		"5h30m":     5*time.Hour + 30*time.Minute,
		"1d 12h":    36 * time.Hour,
		"2 weeks":   14 * day,
		"1mo":       31 * day,
		"1Y":        365 * day,
		"10 mins":   10 * time.Minute,
		"1hr 1sec":  time.Hour + time.Second,
		"in 2 days": 2 * day,
	}
	for input, want := range cases {
		got, err := ParseDuration(input, 0)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestParseDurationRejects(t *testing.T) {
	for _, input := range []string{"", "tomorrow", "10", "0s", "5 parsecs"} {
		_, err := ParseDuration(input, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument, input)
	}

	_, err := ParseDuration("8d", 7*day)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseDuration("99999999999999y", 7*day)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	got, err := ParseDuration("7d", 7*day)
	require.NoError(t, err)
	assert.Equal(t, 7*day, got)
}

func TestDrawBound(t *testing.T) {
	d := &drawer{rng: rand.New(rand.NewPCG(7, 7))}
	for size := 0; size < 12; size++ {
		pool := make([]string, size)
		for i := range pool {
			pool[i] = string(rune('a' + i))
		}
		for count := 1; count < 15; count++ {
			winners := d.draw(pool, count)
			assert.Len(t, winners, min(count, size))
			seen := map[string]bool{}
			for _, w := range winners {
				assert.True(t, slices.Contains(pool, w))
				assert.False(t, seen[w], "duplicate winner %s", w)
				seen[w] = true
			}
		}
	}
}

func TestDrawDoesNotMutatePool(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	d := &drawer{}
	d.draw(pool, 2)
	assert.Equal(t, []string{"a", "b", "c", "d"}, pool)
}

func TestDrawIsRoughlyUniform(t *testing.T) {
	d := &drawer{rng: rand.New(rand.NewPCG(42, 1))}
	pool := []string{"a", "b", "c"}
	counts := map[string]int{}
	for i := 0; i < 3000; i++ {
		counts[d.draw(pool, 1)[0]]++
	}
	for _, id := range pool {
		assert.InDelta(t, 1000, counts[id], 150, id)
	}
}
