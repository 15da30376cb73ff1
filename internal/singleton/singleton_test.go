package singleton

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_InitRunsOnce(t *testing.T) {
	var v Value[*struct{ n int }]
	calls := 0

	first := v.MustGet(func() *struct{ n int } {
		calls++
		return &struct{ n int }{n: calls}
	})

	for i := 0; i < 100; i++ {
		got := v.MustGet(func() *struct{ n int } {
			calls++
			return &struct{ n int }{n: calls}
		})
		assert.Same(t, first, got)
	}

	assert.Equal(t, 1, calls)
	assert.True(t, v.Initialized())
}

func TestValue_FailedInitRetries(t *testing.T) {
	var v Value[int]
	boom := errors.New("boom")
	calls := 0

	_, err := v.Get(func() (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, v.Initialized())

	got, err := v.Get(func() (int, error) {
		calls++
		return 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, got)
	assert.Equal(t, 2, calls)

	got, err = v.Get(func() (int, error) {
		calls++
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, got)
	assert.Equal(t, 2, calls)
}

func TestValue_PanicLeavesUninitialized(t *testing.T) {
	var v Value[string]

	assert.Panics(t, func() {
		v.MustGet(func() string { panic("init failed") })
	})
	assert.False(t, v.Initialized())

	assert.Equal(t, "ok", v.MustGet(func() string { return "ok" }))
}

func TestValue_ConcurrentFirstCalls(t *testing.T) {
	var v Value[int]
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.MustGet(func() int {
				calls.Add(1)
				return 1
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
