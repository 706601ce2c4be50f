// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

// The three class-hint marker keys from §3. An object on the wire that is
// not plain data carries exactly one of these as its sole key.
const (
	hintRemoteObject      = "__remoteobject__"
	hintObjectReference   = "__objectreference__"
	hintFunctionReference = "__functionreference__"
)

// RemoteObject is the peer's view of a hosted object (§3 "Remote-object
// stub"). It carries the synthetic name the peer registered the object
// under, plus four proxies bound to that name, mirroring the Python
// original's RemoteObject(conn, obj) with its .call/.method/.notify/.pipe
// attributes.
type RemoteObject struct {
	conn *Conn
	name string

	// Call is the synchronous (mode 0) proxy scoped to this object.
	Call *Proxy
	// Method is the asynchronous (mode 1) proxy scoped to this object.
	Method *Proxy
	// Notify is the notification (mode 2) proxy scoped to this object.
	Notify *Proxy
	// Pipe is the multi-response (mode 3) proxy scoped to this object.
	Pipe *Proxy

	closed bool
}

func newRemoteObject(conn *Conn, name string) *RemoteObject {
	r := &RemoteObject{conn: conn, name: name}
	r.Call = &Proxy{conn: conn, syncType: syncCall, object: name}
	r.Method = &Proxy{conn: conn, syncType: syncMethod, object: name}
	r.Notify = &Proxy{conn: conn, syncType: syncNotify, object: name}
	r.Pipe = &Proxy{conn: conn, syncType: syncPipe, object: name}
	return r
}

// Name returns the synthetic name this stub was registered under by the
// peer.
func (r *RemoteObject) Name() string { return r.name }

// Connection returns the Conn this stub belongs to, mirroring the Python
// original's "connection" property.
func (r *RemoteObject) Connection() *Conn { return r.conn }

// Async returns a method-mode (asynchronous) Proxy pre-bound to this
// object, whose MethodAsync calls invoke callback with the eventual result
// (its Call and Pipe methods do not use callback), per
// the original's RemoteObject.async(callback) (connection.py:111-113).
func (r *RemoteObject) Async(callback func(value any, err error)) *Proxy {
	return &Proxy{conn: r.conn, syncType: syncMethod, object: r.name, callback: callback}
}

// Close deletes the remote object: it notifies the peer with
// "<name>.__delete__" so the peer may reclaim the hosted object, and marks
// this stub as closed. It is safe to call more than once. There is no
// finalizer backing this up — per design note §9 ("implementers in
// languages without destructors should expose an explicit close() on
// stubs"), cleanup is the caller's responsibility alone; a RemoteObject
// that is dropped without calling Close leaves its peer's hosted-object
// entry alive until the connection itself closes (objects.shutdownAll is
// the authoritative backstop, not per-object GC finalization).
func (r *RemoteObject) Close() {
	if r.closed {
		return
	}
	r.closed = true
	_ = r.Notify.invoke(deleteMethodName, nil, nil)
}

// deleteMethodName is the reserved method name (§6) that destroys a hosted
// object; it never generates a reply even when sent as a call.
const deleteMethodName = "__delete__"

// FunctionReference is an explicit (object, method) pair denoting a bound
// method, the Go analogue of a "__functionreference__" hint. Per design
// note §9, dotted method names become an explicit pair at the API surface
// rather than a dynamically-dispatched callable.
type FunctionReference struct {
	conn          *Conn
	qualifiedName string
}

// Conn returns the connection this reference is bound to.
func (f *FunctionReference) Conn() *Conn { return f.conn }

// Name returns the qualified method name ("method" or "object.method").
func (f *FunctionReference) Name() string { return f.qualifiedName }
