// Copyright © 2018 One Concern

// Package future provides a single-assignment result cell.
//
// A Future is set exactly once by a producer and may be read any number of
// times by consumers, who block until the value is available.
package future

import (
	"context"
	"sync"

	"github.com/oneconcern/packpub/pkg/errors"
)

// ErrAlreadySet is returned when setting a future more than once
var ErrAlreadySet = errors.New("future already set")

// Future holds a deferred result of type T
type Future[T any] struct {
	once  sync.Once
	ready chan struct{}
	value T
}

// New empty future
func New[T any]() *Future[T] {
	return &Future[T]{ready: make(chan struct{})}
}

// Set assigns the value and releases all readers.
//
// Only the first call has an effect: subsequent calls return ErrAlreadySet.
func (f *Future[T]) Set(value T) error {
	err := ErrAlreadySet
	f.once.Do(func() {
		f.value = value
		close(f.ready)
		err = nil
	})
	return err
}

// Get blocks until the value is set
func (f *Future[T]) Get() T {
	<-f.ready
	return f.value
}

// GetContext blocks until the value is set or the context is done
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// IsSet tells if the value is available without blocking
func (f *Future[T]) IsSet() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

// Done is closed when the value is set
func (f *Future[T]) Done() <-chan struct{} {
	return f.ready
}
