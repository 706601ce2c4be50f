// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"fmt"
	"log"
	"time"
)

// Direction labels an event as inbound or outbound, mirroring the teacher
// package's jsonrpc2.Inbound / jsonrpc2.Outbound labels (labels.go).
type Direction string

const (
	Send    Direction = "out"
	Receive Direction = "in"
)

// Logger receives the events a Conn would otherwise only surface by
// logging and swallowing (§7's recovery policy: "recover locally from
// everything except transport-fatal"). It plays the role of the Python
// original's module-level _log and the teacher's Handler.Log callback.
type Logger interface {
	// Event reports a single frame crossing the wire in direction dir for
	// method (empty for responses), and the error, if any, associated with
	// handling it. Conn always passes zero for elapsed; round-trip time is
	// not measured.
	Event(dir Direction, id *int64, method string, elapsed time.Duration, err error)
	// Debugf reports low-volume diagnostic detail: wire tracing when
	// WithWireLogging is set, dropped malformed frames, write errors, and
	// the like.
	Debugf(format string, args ...any)
	// Errorf reports a swallowed error: a panicking Shutdown, a failed
	// write-thread acknowledgement.
	Errorf(format string, args ...any)
}

// StdLogger adapts the standard library's log package to Logger. It is the
// default used by NewConn, just as the teacher falls back to a no-op
// defaultHandler and the Python original defaults _log to a module logger
// with level 40 (ERROR) — ordinary traffic is silent unless Verbose is set.
// Wire tracing enabled by WithWireLogging goes through Debugf, so a
// non-verbose StdLogger drops it as well.
type StdLogger struct {
	*log.Logger
	Verbose bool
}

// NewStdLogger returns a Logger that writes to the standard logger's
// default destination (stderr), reporting only errors unless verbose is
// true.
func NewStdLogger(verbose bool) *StdLogger {
	return &StdLogger{Logger: log.Default(), Verbose: verbose}
}

func (l *StdLogger) Event(dir Direction, id *int64, method string, elapsed time.Duration, err error) {
	if !l.Verbose {
		return
	}
	idStr := "-"
	if id != nil {
		idStr = fmt.Sprintf("%d", *id)
	}
	l.Printf("bjsonrpc: %s id=%s method=%q elapsed=%s err=%v", dir, idStr, method, elapsed, err)
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if !l.Verbose {
		return
	}
	l.Printf(format, args...)
}

func (l *StdLogger) Errorf(format string, args ...any) {
	l.Printf(format, args...)
}

// discardLogger drops everything; used when WithLogger(nil) is passed.
type discardLogger struct{}

func (discardLogger) Event(Direction, *int64, string, time.Duration, error) {}
func (discardLogger) Debugf(string, ...any)                                 {}
func (discardLogger) Errorf(string, ...any)                                 {}
