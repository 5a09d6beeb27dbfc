package giveaway

import (
	"math/rand/v2"
	"sync"
)

// drawer samples winners uniformly without replacement. A nil source falls
// back to the global generator.
type drawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (d *drawer) intN(n int) int {
	if d.rng == nil {
		return rand.IntN(n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(n)
}

// draw returns min(count, len(pool)) distinct members of pool in draw order.
func (d *drawer) draw(pool []string, count int) []string {
	n := min(count, len(pool))
	if n <= 0 {
		return []string{}
	}
	shuffled := append([]string(nil), pool...)
	for i := 0; i < n; i++ {
		j := i + d.intN(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n:n]
}
