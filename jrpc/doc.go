// Package jrpc implements the JSON-RPC 2.0 wire shapes and the method binding used by the
// connection handler.
//
// Batches and named (object) parameters are not supported: a batch or an object in
// the params member is reported as a parse error. A null id is the same as no id: the
// request is a notification.
//
// # Binding methods
//
// Any function with positional parameters can be registered:
//
//	reg := jrpc.NewRegistry()
//	reg.Register(
//	    jrpc.Method("add", func(a, b int) int { return a + b }),
//	    jrpc.Method("greeting", func(name string) *jrpc.Promise[string] {
//	        return jrpc.Async(func() (string, error) { return "Hello, " + name, nil })
//	    }),
//	)
//
// The arguments of a call are checked against the arity first and then decoded left to
// right; the first failure is reported as an invalid params error.
//
// # Errors
//
// Errors returned by a method are converted with the binding's converter. By default an
// *Error anywhere in the chain is sent as-is, and any other error becomes a server error
// with code -32000. Application codes must lie within [-32099, -32000]:
//
//	return 0, jrpc.ServerError(-32001, "quota exceeded", nil)
//
// A result that cannot be encoded is a defect of the method, not of the request, and
// panics with a *ContractError instead of producing a response. Any other panic in an
// Async body rejects the promise with a *PanicError and is reported as an internal error.
package jrpc
