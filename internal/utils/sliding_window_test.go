package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowCountsInsideWindow(t *testing.T) {
	w := NewSlidingWindow(10 * time.Second)
	start := time.Unix(1_700_000_000, 0)

	assert.Equal(t, 1, w.Add(start))
	assert.Equal(t, 2, w.Add(start.Add(3*time.Second)))
	assert.Equal(t, 3, w.Add(start.Add(9*time.Second)))
	assert.Equal(t, 2, w.Count(start.Add(12*time.Second)))
}

func TestSlidingWindowDropsHitAtCutoff(t *testing.T) {
	w := NewSlidingWindow(10 * time.Second)
	start := time.Unix(1_700_000_000, 0)
	w.Add(start)

	assert.Equal(t, 1, w.Count(start.Add(10*time.Second-time.Nanosecond)))
	assert.Equal(t, 0, w.Count(start.Add(10*time.Second)))
	assert.Equal(t, 1, w.Add(start.Add(10*time.Second)))
}

func TestSlidingWindowEmptiesAfterLastHit(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		w.Add(start.Add(time.Duration(i) * time.Second))
	}

	assert.Equal(t, 1, w.Count(start.Add(time.Minute+3*time.Second)))
	assert.Equal(t, 0, w.Count(start.Add(time.Minute+4*time.Second)))
	assert.Empty(t, w.hits)
}
