// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import "context"

// syncType selects one of the four call-delivery modes described in §4.E.
type syncType int

const (
	// syncCall blocks until the response arrives and returns its result.
	syncCall syncType = iota
	// syncMethod returns immediately with a *Request, auto-closed on the
	// first response.
	syncMethod
	// syncNotify sends no id and expects no reply.
	syncNotify
	// syncPipe returns immediately with a *Request that is not
	// auto-closed: the caller polls Value repeatedly and must Close it.
	syncPipe
)

// Proxy is the user-facing call-forwarding facade described in §4.E,
// parameterized by a Conn, a sync mode, and an optional hosted-object name
// that every call is dotted onto. Per design note §9, Go exposes this as an
// explicit Call/MethodAsync/Notify/Pipe surface instead of Python's dynamic
// attribute dispatch (proxy.method_name(...)).
type Proxy struct {
	conn     *Conn
	syncType syncType
	object   string   // "" for the connection's root-scoped proxies
	callback func(value any, err error)
}

// qualify dots method onto the proxy's bound object name, if any.
func (p *Proxy) qualify(method string) string {
	if p.object == "" {
		return method
	}
	return p.object + "." + method
}

// Call performs a synchronous call (mode 0): it blocks until the response
// arrives and returns its result, or the error the peer (or the local
// connection, on close) reported.
func (p *Proxy) Call(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
	req, err := p.conn.sendRequest(ctx, p.qualify(method), args, kwargs, true, nil)
	if err != nil {
		return nil, err
	}
	return req.Value(ctx)
}

// MethodAsync performs an asynchronous call (mode 1): it returns
// immediately with a *Request that is auto-closed on its first response.
func (p *Proxy) MethodAsync(ctx context.Context, method string, args []any, kwargs map[string]any) (*Request, error) {
	return p.conn.sendRequest(ctx, p.qualify(method), args, kwargs, true, p.callback)
}

// Notify performs a fire-and-forget call (mode 2): no id is assigned and no
// reply is ever expected, even if the peer's handler raises.
func (p *Proxy) Notify(ctx context.Context, method string, args []any, kwargs map[string]any) error {
	return p.invoke(method, args, kwargs)
}

func (p *Proxy) invoke(method string, args []any, kwargs map[string]any) error {
	return p.conn.sendNotify(p.qualify(method), args, kwargs)
}

// Pipe performs a multi-response call (mode 3): it returns immediately with
// a *Request that is NOT auto-closed, so the caller may call Value
// repeatedly to receive each response sharing the request's id, and must
// call Close when done.
func (p *Proxy) Pipe(ctx context.Context, method string, args []any, kwargs map[string]any) (*Request, error) {
	return p.conn.sendRequest(ctx, p.qualify(method), args, kwargs, false, nil)
}
