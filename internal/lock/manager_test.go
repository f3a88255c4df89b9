package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/internal/lock"
	"github.com/gxp-audit/gxa/pkg/model"
)

var machine42 = model.EntityKey{Type: "machines", ID: "42"}

func TestManager_SerializesSameKey(t *testing.T) {
	m := lock.NewManager()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), machine42)
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, m.Held())
}

func TestManager_DifferentKeysDoNotBlock(t *testing.T) {
	m := lock.NewManager()
	release, err := m.Acquire(context.Background(), machine42)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := m.Acquire(ctx, model.EntityKey{Type: "machines", ID: "43"})
	require.NoError(t, err)
	other()
}

func TestManager_ContextCancelWhileWaiting(t *testing.T) {
	m := lock.NewManager()
	release, err := m.Acquire(context.Background(), machine42)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, machine42)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, m.Held())
}

func TestManager_ReleaseIdempotent(t *testing.T) {
	m := lock.NewManager()
	release, err := m.Acquire(context.Background(), machine42)
	require.NoError(t, err)
	release()
	assert.NotPanics(t, release)

	again, err := m.Acquire(context.Background(), machine42)
	require.NoError(t, err)
	again()
}

func TestManager_CancelledContextNeverAcquiresFreeLock(t *testing.T) {
	m := lock.NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		release, err := m.Acquire(ctx, machine42)
		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, release)
	}
	assert.Equal(t, 0, m.Held())

	release, err := m.Acquire(context.Background(), machine42)
	require.NoError(t, err)
	release()
}
