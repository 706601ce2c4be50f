// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bjsonrpc implements a bidirectional, symmetric, line-delimited
// JSON-RPC transport over a reliable stream socket. Either peer may
// initiate calls at any time; there is no fixed client/server asymmetry at
// the protocol layer.
//
// A Conn wraps an io.ReadWriteCloser (typically a net.Conn) and exposes
// four call modes through Proxy: synchronous Call, asynchronous Method,
// fire-and-forget Notify, and multi-response Pipe. Inbound calls are routed
// to a Handler, which may itself register further hosted objects that the
// peer addresses by a synthetic name.
//
// The wire format is a proprietary dialect close to JSON-RPC 1.0 with
// extensions for exchanging object references and bound methods; see the
// package-level hint types RemoteObject, and the "__remoteobject__" /
// "__objectreference__" / "__functionreference__" markers they correspond
// to on the wire.
package bjsonrpc
