// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"fmt"
	"reflect"
	"sync"
)

// objectTable is the per-connection table of locally-hosted objects
// exposed by synthetic names (§3 "Hosted object", §4.D). Registration is
// lazy and idempotent per (connection, object): the first time dumpObject
// serializes a given Handler it creates the synthetic name; subsequent
// serializations of the same object on the same connection return the same
// name, mirroring obj.__remoteobjects__[self] in the Python original.
type objectTable struct {
	mu     sync.Mutex
	byName map[string]Handler
	nameOf map[Handler]string
}

func newObjectTable() *objectTable {
	return &objectTable{
		byName: make(map[string]Handler),
		nameOf: make(map[Handler]string),
	}
}

// register returns obj's synthetic name on this connection, allocating one
// on first use via nextID (the connection's shared id counter, matching
// the Python original's reuse of self.get_id() inside
// _dump_remoteobject).
func (t *objectTable) register(obj Handler, nextID func() int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name, ok := t.nameOf[obj]; ok {
		return name
	}
	className := reflect.TypeOf(obj).String()
	if idx := lastDot(className); idx >= 0 {
		className = className[idx+1:]
	}
	className = toLowerASCII(className)
	name := fmt.Sprintf("%s_%04x", className, nextID())
	t.byName[name] = obj
	t.nameOf[obj] = name
	return name
}

// lookup resolves a hosted object by its synthetic name.
func (t *objectTable) lookup(name string) (Handler, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.byName[name]
	return obj, ok
}

// delete removes name from the table, invoking Shutdowner if the object
// implements it. Panics from Shutdown are recovered and logged, not
// propagated: "exceptions in it are logged and swallowed — removal still
// occurs" (§4.D).
func (t *objectTable) delete(name string, logger Logger) {
	t.mu.Lock()
	obj, ok := t.byName[name]
	if ok {
		delete(t.byName, name)
		delete(t.nameOf, obj)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if s, ok := obj.(Shutdowner); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("bjsonrpc: shutting down object %T: %v", obj, r)
				}
			}()
			s.Shutdown()
		}()
	}
}

// shutdownAll tears down every remaining hosted object at connection
// close, the authoritative cleanup §5 promises since remote-stub deletes
// are only best-effort.
func (t *objectTable) shutdownAll(logger Logger) {
	t.mu.Lock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	t.mu.Unlock()
	for _, name := range names {
		t.delete(name, logger)
	}
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
