// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"fmt"
	"strings"
)

// EOFError reports that the peer closed the stream. It carries the number
// of bytes that were buffered but not yet consumed into a full frame, as
// the Python original's EofError(len(streambuffer)) did.
type EOFError struct {
	Unconsumed int
}

func (e *EOFError) Error() string {
	return fmt.Sprintf("bjsonrpc: connection closed by peer (%d unconsumed bytes)", e.Unconsumed)
}

// InvalidReferenceError is returned by the decode hook when a
// "__objectreference__" hint names an object that is not (or no longer)
// hosted on this connection.
type InvalidReferenceError struct {
	Name string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("bjsonrpc: invalid object reference %q", e.Name)
}

// CrossConnectionSerializationError is a local programming error: the
// caller tried to serialize a FunctionReference that is bound to a
// different Conn than the one doing the serializing.
type CrossConnectionSerializationError struct {
	Name string
}

func (e *CrossConnectionSerializationError) Error() string {
	return fmt.Sprintf("bjsonrpc: function reference %q belongs to another connection", e.Name)
}

// NonSerializableError is returned when dumpObject is asked to encode a
// value it has no class hint for: not a JSON primitive, not a
// *RemoteObject, not a *FunctionReference, and not a Handler.
type NonSerializableError struct {
	Value any
}

func (e *NonSerializableError) Error() string {
	return fmt.Sprintf("bjsonrpc: value of type %T is not serializable", e.Value)
}

// DuplicateRequestIDError is a local programming error: addRequest was
// called with an id that is already pending.
type DuplicateRequestIDError struct {
	ID int64
}

func (e *DuplicateRequestIDError) Error() string {
	return fmt.Sprintf("bjsonrpc: request id %d is already pending", e.ID)
}

// InvalidObjectIdentifierError is a dispatch-level error: an inbound
// request named "<object>.<method>" where <object> is not a hosted name.
type InvalidObjectIdentifierError struct {
	Name string
}

func (e *InvalidObjectIdentifierError) Error() string {
	return fmt.Sprintf("InvalidObjectIdentifier: %s", e.Name)
}

// ServerError is the Go analogue of the Python original's
// bjsonrpc.exceptions.ServerError: a Handler method or GetMethod lookup
// raises this to control exactly the string sent back to the peer,
// bypassing the generic "<type>: <message>" formatting applied to any
// other error.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// NewServerError builds a ServerError with a formatted message.
func NewServerError(format string, args ...any) *ServerError {
	return &ServerError{Message: fmt.Sprintf(format, args...)}
}

// connClosedError is returned to callers of Call/MethodAsync/Pipe whose
// request is still pending when the connection closes.
type connClosedError struct{}

func (connClosedError) Error() string { return "bjsonrpc: connection closed" }

// ErrConnClosed is returned (possibly wrapped) by blocking operations when
// the Conn is closed while they are waiting.
var ErrConnClosed error = connClosedError{}

// PanicError reports that a handler's HandlerFunc panicked. invoke recovers
// the panic and wraps it in this type so formatHandlerError can render it
// with a clean Kind, the same as the Python original's dispatcher catching
// any Exception a handler raises and reporting it like any other
// dispatch-level error (§7).
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("PanicError: %v", e.Value) }

// formatHandlerError renders a Go error raised by a handler method into the
// short "<Kind>: <message>" string the wire protocol uses for dispatch-level
// failures (§7), mirroring the Python original's _format_exception, which
// uses type(e).__name__ — a bare class name, never a package-qualified one.
// ServerError is sent verbatim, and InvalidObjectIdentifierError and
// PanicError already render their own clean "<Kind>: <message>" string via
// Error(). Every other error, including this package's other error types,
// falls through to the generic case, which prefixes a derived Kind while
// still avoiding Go's package-qualified %T spelling (e.g.
// "*bjsonrpc.InvalidReferenceError") on the wire.
func formatHandlerError(err error) string {
	switch err.(type) {
	case *ServerError, *InvalidObjectIdentifierError, *PanicError:
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", genericErrorKind(err), err.Error())
}

// genericErrorKind derives a short Kind name for an error value this
// package doesn't itself define, stripping any Go package qualification
// (and pointer marker) off of %T so the wire never sees a Go-internal type
// path, only a bare identifier comparable to a Python exception class name.
func genericErrorKind(err error) string {
	kind := fmt.Sprintf("%T", err)
	kind = strings.TrimPrefix(kind, "*")
	if idx := strings.LastIndexByte(kind, '.'); idx >= 0 {
		kind = kind[idx+1:]
	}
	return kind
}
