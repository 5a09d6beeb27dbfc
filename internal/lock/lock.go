package lock

import (
	"context"
	"sync"
	"time"
)

// Claimer grants a key to at most one caller until the claim expires or is
// released.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Local is an in-process Claimer used when no Redis is configured.
type Local struct {
	mu   sync.Mutex
	ttl  time.Duration
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal(ttl time.Duration) *Local {
	return &Local{ttl: ttl, held: make(map[string]time.Time), now: time.Now}
}

func (l *Local) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[key]; ok && (l.ttl <= 0 || now.Before(expires)) {
		return false, nil
	}
	l.held[key] = now.Add(l.ttl)
	return true, nil
}

func (l *Local) Release(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
	return nil
}
