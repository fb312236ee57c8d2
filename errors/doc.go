// Package errors provides structured error types for the plugin host bridge.
//
// Errors are categorized by Phase (which layer produced the error) and Kind
// (error category). The Error type carries the property path, the scripting
// type involved, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValue, errors.KindTypeMismatch).
//		Path("window", "title").
//		Type("int").
//		Detail("cannot read a string from an int").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseGateway, "instance", uint64(h))
//	err := errors.UnknownStream(id)
//
// Errors never cross the bridge boundary: the gateway logs them and returns
// the documented sentinel (false, a zero handle, or nil) instead.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
