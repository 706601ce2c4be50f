// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// dumpObject is the encode hook described in §4.B. It recursively converts
// a value rooted at v into something encoding/json can marshal natively
// (nil, bool, string, float64, []any, map[string]any), replacing any
// RemoteObject/FunctionReference/Handler value it encounters with its
// corresponding class hint, per the policy table in §4.B.
func (c *Conn) dumpObject(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return toFloat64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, &NonSerializableError{Value: v}
		}
		return f, nil
	case *RemoteObject:
		return map[string]any{hintObjectReference: t.name}, nil
	case *FunctionReference:
		if t.conn != c {
			return nil, &CrossConnectionSerializationError{Name: t.qualifiedName}
		}
		return map[string]any{hintFunctionReference: t.qualifiedName}, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			encoded, err := c.dumpObject(val)
			if err != nil {
				return nil, err
			}
			out[k] = encoded
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			encoded, err := c.dumpObject(val)
			if err != nil {
				return nil, err
			}
			out[i] = encoded
		}
		return out, nil
	case Handler:
		name := c.objects.register(t, c.nextID)
		return map[string]any{hintRemoteObject: name}, nil
	case json.Marshaler:
		// Anything that already knows how to marshal itself (a plain
		// struct result type, for instance) is left for encoding/json to
		// handle untouched.
		return t, nil
	default:
		return nil, &NonSerializableError{Value: v}
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}

// loadObject is the decode hook described in §4.B. It recursively walks a
// value already unmarshaled into any (so maps are map[string]any and
// arrays are []any) and promotes any map carrying one of the three class
// hint keys into the corresponding runtime value.
func (c *Conn) loadObject(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if name, ok := t[hintRemoteObject].(string); ok && len(t) == 1 {
			return c.remoteObjectFor(name), nil
		}
		if name, ok := t[hintObjectReference].(string); ok && len(t) == 1 {
			obj, found := c.objects.lookup(name)
			if !found {
				return nil, &InvalidReferenceError{Name: name}
			}
			return obj, nil
		}
		if name, ok := t[hintFunctionReference].(string); ok && len(t) == 1 {
			return c.resolveFunctionReference(name)
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			loaded, err := c.loadObject(val)
			if err != nil {
				return nil, err
			}
			out[k] = loaded
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			loaded, err := c.loadObject(val)
			if err != nil {
				return nil, err
			}
			out[i] = loaded
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveFunctionReference resolves a "__functionreference__" hint's name
// (either "method" for the root handler or "object.method" for a hosted
// object) to a *FunctionReference, validating that the method actually
// exists the same way the Python original's load_object does via
// obj.get_method(methodname).
func (c *Conn) resolveFunctionReference(name string) (*FunctionReference, error) {
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		objName, method := name[:dot], name[dot+1:]
		obj, ok := c.objects.lookup(objName)
		if !ok {
			return nil, &InvalidObjectIdentifierError{Name: objName}
		}
		if _, err := obj.GetMethod(method); err != nil {
			return nil, err
		}
	} else if _, err := c.handler.GetMethod(name); err != nil {
		return nil, err
	}
	return &FunctionReference{conn: c, qualifiedName: name}, nil
}

// remoteObjectFor returns a new *RemoteObject stub for name. Stubs are not
// cached: decoding the same "__remoteobject__" hint twice on one
// connection yields two distinct stubs, each with its own proxies.
func (c *Conn) remoteObjectFor(name string) *RemoteObject {
	return newRemoteObject(c, name)
}

// encodeFrame marshals v (after running it through dumpObject) to JSON
// text suitable for framer.writeLine.
func (c *Conn) encodeFrame(v any) (string, error) {
	dumped, err := c.dumpObject(v)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(dumped)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeFrame unmarshals line into a generic any using json.Number for
// integers (so request/response ids round-trip exactly), then runs the
// result through loadObject.
func (c *Conn) decodeFrame(line string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	raw = normalizeNumbers(raw)
	return c.loadObject(raw)
}

// normalizeNumbers converts json.Number leaves into int64 when they are
// integral and float64 otherwise, since the dispatcher and application
// code work with plain Go values, not json.Number.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	default:
		return v
	}
}
