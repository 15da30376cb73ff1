// Package singleton runs a value factory exactly once per owner.
//
// Unlike a memoization cache, a Value never forgets: once init succeeds the
// stored value is returned forever. A failed init leaves the slot empty so
// the next caller retries.
package singleton

import "sync"

// Value holds a lazily initialized value. The zero Value is ready to use.
type Value[T any] struct {
	mu          sync.Mutex
	initialized bool
	value       T
}

// Get returns the stored value, calling init on the first call. If init
// returns an error, the error is returned to this caller and the Value stays
// uninitialized.
func (v *Value[T]) Get(init func() (T, error)) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		return v.value, nil
	}

	value, err := init()
	if err != nil {
		var zero T
		return zero, err
	}

	v.value = value
	v.initialized = true
	return v.value, nil
}

// MustGet is Get for factories that cannot fail. A panic raised by init
// propagates to the caller and leaves the Value uninitialized.
func (v *Value[T]) MustGet(init func() T) T {
	value, _ := v.Get(func() (T, error) {
		return init(), nil
	})
	return value
}

// Initialized reports whether a value has been stored.
func (v *Value[T]) Initialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initialized
}
