package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalClaimOnce(t *testing.T) {
	l := NewLocal(time.Minute)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "m1"))
	ok, err = l.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalClaimExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLocal(time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Claim(ctx, "m1")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.Claim(ctx, "m1")
	assert.True(t, ok)
}

func TestLocalConcurrentClaims(t *testing.T) {
	l := NewLocal(time.Minute)
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Claim(context.Background(), "m1"); ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}
