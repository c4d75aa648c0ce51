package jrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"get.pme.sh/wsjrpc/xlog"

	"github.com/pkg/errors"
)

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	awaitableType = reflect.TypeOf((*awaitable)(nil)).Elem()
)

// Binding adapts a typed Go function to the uniform invocation contract:
// an ordered list of JSON values in, a Future of a JSON value or an *Error out.
//
// Accepted function shapes, with an optional leading context.Context that does not count
// towards the arity:
//
//	func(a A, b B)
//	func(a A, b B) error
//	func(a A, b B) R
//	func(a A, b B) (R, error)
//	func(a A, b B) *Promise[R]
//	func(a A, b B) (*Promise[R], error)
type Binding struct {
	name     string
	fn       reflect.Value
	withCtx  bool
	params   []reflect.Type
	hasValue bool
	hasErr   bool
	async    bool
	convert  func(error) *Error
}

type BindOption func(*Binding)

// WithErrorConverter sets the conversion applied to every error the function returns.
func WithErrorConverter(convert func(error) *Error) BindOption {
	return func(b *Binding) { b.convert = convert }
}

// WithName names the binding, used in contract violation reports.
func WithName(name string) BindOption {
	return func(b *Binding) { b.name = name }
}

// DefaultErrorConverter keeps any *Error found in the chain and reports everything
// else as a generic server error carrying the error text.
func DefaultErrorConverter(err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	return ServerError(CodeServerErrorMax, err.Error(), nil)
}

func isNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// Bind builds the adapter for fn. It fails if fn does not have one of the accepted shapes.
func Bind(fn any, opts ...BindOption) (*Binding, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, errors.Errorf("jrpc: cannot bind %T, expected a function", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, errors.Errorf("jrpc: cannot bind variadic function %s", t)
	}

	b := &Binding{fn: v, convert: DefaultErrorConverter}
	for _, opt := range opts {
		opt(b)
	}
	if b.name == "" {
		b.name = t.String()
	}

	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		if i == 0 && in == contextType {
			b.withCtx = true
			continue
		}
		b.params = append(b.params, in)
	}

	errSlot := func(out reflect.Type) error {
		if !out.Implements(errorType) || !isNilable(out) {
			return errors.Errorf("jrpc: cannot bind %s, last result must be a nilable error", t)
		}
		b.hasErr = true
		return nil
	}
	switch t.NumOut() {
	case 0:
	case 1:
		if out := t.Out(0); out.Implements(errorType) {
			if err := errSlot(out); err != nil {
				return nil, err
			}
		} else {
			b.hasValue = true
		}
	case 2:
		if err := errSlot(t.Out(1)); err != nil {
			return nil, err
		}
		b.hasValue = true
	default:
		return nil, errors.Errorf("jrpc: cannot bind %s, too many results", t)
	}
	b.async = b.hasValue && t.Out(0).Implements(awaitableType)
	return b, nil
}

// MustBind is like Bind but panics on failure.
func MustBind(fn any, opts ...BindOption) *Binding {
	b, err := Bind(fn, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// Arity is the number of positional parameters the method expects.
func (b *Binding) Arity() int { return len(b.params) }

func (b *Binding) IsAsync() bool { return b.async }

func (b *Binding) fail(err error) *Error {
	if e := b.convert(err); e != nil {
		return e
	}
	return InternalError(err.Error())
}

// encode panics with a ContractError if the declared result type cannot be encoded.
func (b *Binding) encode(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(errors.WithStack(&ContractError{Method: b.name, Err: err}))
	}
	return data
}

// Invoke checks the arity, decodes each argument left to right and calls the function.
// Synchronous functions yield a completed Future, asynchronous ones settle it once their
// promise does.
func (b *Binding) Invoke(ctx context.Context, args []json.RawMessage) *Future {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(args) != len(b.params) {
		msg := fmt.Sprintf("expected %d parameters, %d given", len(b.params), len(args))
		return Completed(nil, InvalidParams(msg))
	}

	in := make([]reflect.Value, 0, len(b.params)+1)
	if b.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, pt := range b.params {
		if !isNilable(pt) && bytes.Equal(bytes.TrimSpace(args[i]), nullID) {
			return Completed(nil, InvalidParams(fmt.Sprintf("invalid parameter %d: null is not a valid %s", i, pt)))
		}
		ptr := reflect.New(pt)
		if err := json.Unmarshal(args[i], ptr.Interface()); err != nil {
			return Completed(nil, InvalidParams(fmt.Sprintf("invalid parameter %d: %s", i, err)))
		}
		in = append(in, ptr.Elem())
	}

	out := b.fn.Call(in)
	if b.hasErr {
		if ev := out[len(out)-1]; !ev.IsNil() {
			return Completed(nil, b.fail(ev.Interface().(error)))
		}
	}
	if !b.hasValue {
		return Completed(nullID, nil)
	}

	value := out[0]
	if !b.async {
		return Completed(b.encode(value.Interface()), nil)
	}
	if value.IsNil() {
		return Completed(nullID, nil)
	}

	f := newFuture()
	promise := value.Interface().(awaitable)
	go func() {
		v, err := promise.await(ctx)
		var pe *PanicError
		if errors.As(err, &pe) {
			xlog.ErrStackC(ctx, err).Str("method", b.name).Msg("Method panicked")
			f.settle(nil, InternalError(nil))
			return
		}
		if err != nil {
			f.settle(nil, b.fail(err))
			return
		}
		f.settle(b.encode(v), nil)
	}()
	return f
}
