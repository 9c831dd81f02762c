package wrapper

import (
	"context"
	"fmt"
	"sync"
)

// Awaitable is the type-erased view of an asynchronous result.
type Awaitable interface {
	Done() <-chan struct{}
	AwaitAny(ctx context.Context) (any, error)
}

// Future is a value that becomes available once the producing goroutine
// finishes. It is hot: the work starts when the future is created.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Go runs fn in its own goroutine. A panic in fn fails the future.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, fmt.Errorf("panic: %v", r))
			}
		}()
		v, err := fn(ctx)
		f.complete(v, err)
	}()
	return f
}

// NewPromise returns a pending future and the function completing it. Only
// the first completion counts.
func NewPromise[T any]() (*Future[T], func(T, error)) {
	f := newFuture[T]()
	return f, f.complete
}

func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the result or for ctx, whichever comes first. Giving up on
// ctx does not stop the producer; it is expected to watch the same context.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) AwaitAny(ctx context.Context) (any, error) {
	return f.Await(ctx)
}

// Then chains fn onto f without blocking the caller.
func Then[T, U any](ctx context.Context, f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Go(ctx, func(ctx context.Context) (U, error) {
		v, err := f.Await(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}

// Chain chains fn onto a and, when fn produces another asynchronous value,
// waits for that too so the caller sees a single future.
func Chain(ctx context.Context, a Awaitable, fn func(any) (any, error)) *Future[any] {
	return Go(ctx, func(ctx context.Context) (any, error) {
		v, err := a.AwaitAny(ctx)
		if err != nil {
			return nil, err
		}
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		if next, ok := out.(Awaitable); ok {
			return next.AwaitAny(ctx)
		}
		return out, nil
	})
}
