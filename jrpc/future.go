package jrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Promise is the eventual outcome of an asynchronous method body.
type Promise[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// PanicError settles a promise whose body panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Async runs fn on its own goroutine and returns its promise. A panic in fn rejects the
// promise with a *PanicError, contract violations keep panicking.
func Async[T any](fn func() (T, error)) *Promise[T] {
	p := NewPromise[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var contract *ContractError
				if err, ok := r.(error); ok && errors.As(err, &contract) {
					panic(r)
				}
				var zero T
				p.Settle(zero, errors.WithStack(&PanicError{Value: r}))
			}
		}()
		p.Settle(fn())
	}()
	return p
}

func Resolve[T any](v T) *Promise[T] {
	p := NewPromise[T]()
	p.Settle(v, nil)
	return p
}
func Reject[T any](err error) *Promise[T] {
	p := NewPromise[T]()
	var zero T
	p.Settle(zero, err)
	return p
}

// Settle completes the promise, only the first call has any effect.
func (p *Promise[T]) Settle(v T, err error) {
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
	})
}

func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Get waits for the outcome or for ctx to end.
func (p *Promise[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

// await erases T so that the binder can consume any promise through reflection.
func (p *Promise[T]) await(ctx context.Context) (any, error) {
	return p.Get(ctx)
}

type awaitable interface {
	await(ctx context.Context) (any, error)
}

// Future is the JSON level outcome of Binding.Invoke.
type Future struct {
	done   chan struct{}
	result json.RawMessage
	err    *Error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(result json.RawMessage, err *Error) {
	f.result, f.err = result, err
	close(f.done)
}

// Completed returns an already settled future.
func Completed(result json.RawMessage, err *Error) *Future {
	f := newFuture()
	f.settle(result, err)
	return f
}

func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the outcome is available.
func (f *Future) Wait() (json.RawMessage, *Error) {
	<-f.done
	return f.result, f.err
}

// Response waits for the outcome and wraps it as the reply to id.
func (f *Future) Response(id json.RawMessage) *Response {
	result, err := f.Wait()
	if err != nil {
		return Fail(err, id)
	}
	return Ok(result, id)
}
