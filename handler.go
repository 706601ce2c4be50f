// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"context"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// HandlerFunc is the signature of one bound method. args holds positional
// parameters (when the inbound "params" was a JSON array) and kwargs holds
// keyword parameters (when "params" or "kwparams" was a JSON object),
// following the encode/decode rules in §4.E.
//
// A HandlerFunc may return a value implementing Stream, in which case the
// Dispatcher treats the call as a pipe call and sends one response per
// value the Stream yields, realizing the "generator handler" semantics of
// §4.G and design note §9 ("Model as a handler returning a lazy, finite
// sequence of values").
type HandlerFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// BoundMethod pairs a HandlerFunc with an optional JSON Schema describing
// its keyword parameters. When Params is set, the Dispatcher validates
// kwargs before invoking Fn, the same validate-then-invoke shape as
// modelcontextprotocol-go-sdk's mcp/tool.go:newServerTool. Schema defaults
// are not applied to kwargs.
type BoundMethod struct {
	Fn     HandlerFunc
	Params *jsonschema.Schema

	once       sync.Once
	resolved   *jsonschema.Resolved
	resolveErr error
}

// resolve lazily resolves Params, caching the result the same way
// mcp/schema_cache.go caches resolved schemas, so repeated calls to the
// same method don't repay resolution cost.
func (m *BoundMethod) resolve() (*jsonschema.Resolved, error) {
	if m.Params == nil {
		return nil, nil
	}
	m.once.Do(func() {
		m.resolved, m.resolveErr = m.Params.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	})
	return m.resolved, m.resolveErr
}

// validate checks kwargs against the method's schema, if any; kwargs is
// not modified and schema defaults are not filled in. Calls with no
// keyword args skip validation. Positional args are not validated: the JSON
// Schema the pack's ecosystem tooling generates describes a keyword object,
// not a positional tuple, so validation is skipped (and documented here)
// for args-style calls, rather than guessed at.
func (m *BoundMethod) validate(kwargs map[string]any) error {
	resolved, err := m.resolve()
	if err != nil {
		return err
	}
	if resolved == nil || kwargs == nil {
		return nil
	}
	return resolved.Validate(kwargs)
}

// Handler resolves inbound method names to callable methods. The root
// handler passed to NewConn and every hosted object registered via
// dumpObject implement Handler; it is the Go analogue of the Python
// original's get_method(name) convention used by both BaseHandler
// subclasses and plain hosted objects.
type Handler interface {
	// GetMethod returns the bound method named name. It should return a
	// *ServerError to control exactly the string placed in the reply's
	// "error" field; any other error is formatted as "<Kind>: <message>"
	// per §7.
	GetMethod(name string) (*BoundMethod, error)
}

// Shutdowner is an optional capability, the Go analogue of the Python
// original's obj._shutdown(). Conn.Close calls it on the root handler, and
// the remote-object table calls it when a hosted object is deleted,
// matching the "optional capability" idiom the pack itself uses (see
// birpc.FillArgser).
type Shutdowner interface {
	Shutdown()
}

// NullHandler answers every GetMethod with "method not found" and exposes
// no hosted objects, exactly as the Python original's default
// handler_factory=None leaves self.handler unset and every inbound call
// fails to resolve a method.
type NullHandler struct{}

func (NullHandler) GetMethod(name string) (*BoundMethod, error) {
	return nil, NewServerError("MethodNotFound: %q", name)
}
