// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"fmt"
	"strings"
)

// dispatchLine decodes one frame and routes it, reporting whether a
// frame was actually dispatched (false for anything decodeFrame or
// dispatchValue rejects as malformed, per §7 "frame-malformed: logged
// and dropped").
func (c *Conn) dispatchLine(line string) bool {
	decoded, err := c.decodeFrame(line)
	if err != nil {
		c.logger.Debugf("bjsonrpc: malformed frame dropped: %v", err)
		return false
	}
	return c.dispatchValue(decoded)
}

// dispatchValue classifies a decoded frame as a batch, a single item, or
// something unrecognized, per §4.G.
func (c *Conn) dispatchValue(v any) bool {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				c.logger.Debugf("bjsonrpc: batch element with unknown format type %T dropped", item)
				continue
			}
			c.dispatchBatchItem(m)
		}
		return true
	case map[string]any:
		c.dispatchTopLevelItem(t)
		return true
	default:
		c.logger.Debugf("bjsonrpc: frame with unknown format type %T dropped", v)
		return false
	}
}

// dispatchBatchItem dispatches one element of a batch using the
// connection's threaded policy (§5: batch elements are dispatched the
// same way a standalone item would be, including responses — unlike a
// standalone response, which always runs inline; see dispatchTopLevelItem).
func (c *Conn) dispatchBatchItem(item map[string]any) {
	if c.cfg.threaded {
		go c.dispatchItemSingle(item)
		return
	}
	c.dispatchItemSingle(item)
}

// dispatchTopLevelItem dispatches a single (non-batch) decoded frame. A
// response (has "result") always runs inline on the reader goroutine,
// regardless of the threaded setting, mirroring the Python original's
// read_and_dispatch special-casing of 'result' in item. A request
// ("method" present) follows the connection's threaded policy: when
// threaded, dispatch runs on its own goroutine with no ordering promised
// relative to any other in-flight request (§5 — this deliberately does
// NOT serialize one request after another the way a chained-channel
// async handler would; each inbound call is independent).
func (c *Conn) dispatchTopLevelItem(item map[string]any) {
	if _, isResponse := item["result"]; isResponse {
		c.dispatchItemSingle(item)
		return
	}
	if c.cfg.threaded {
		go c.dispatchItemSingle(item)
		return
	}
	c.dispatchItemSingle(item)
}

// dispatchItemSingle routes one decoded frame object to the response or
// request path.
func (c *Conn) dispatchItemSingle(item map[string]any) {
	if result, ok := item["result"]; ok {
		c.dispatchResponse(item, result)
		return
	}
	methodVal, hasMethod := item["method"]
	if !hasMethod {
		c.replyUnknownFormat(item)
		return
	}
	method, _ := methodVal.(string)
	args, kwargs := extractParams(item)
	c.dispatchRequest(item, method, args, kwargs)
}

// extractParams applies the decode side of §4.E's params/kwparams rule:
// an array "params" is positional args; an object "params" is keyword
// args; "kwparams", when present, supplies keyword args alongside
// positional ones from an array "params".
func extractParams(item map[string]any) ([]any, map[string]any) {
	var args []any
	var kwargs map[string]any
	if p, ok := item["params"]; ok {
		switch pv := p.(type) {
		case map[string]any:
			kwargs = pv
		case []any:
			args = pv
		}
	}
	if kwargs == nil {
		if kw, ok := item["kwparams"].(map[string]any); ok {
			kwargs = kw
		}
	}
	return args, kwargs
}

// toInt64 converts a decoded id value (already normalized to int64 or
// float64 by decodeFrame) to an int64, reporting false for anything else
// or for a float64 that isn't integral.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		i := int64(n)
		return i, float64(i) == n
	default:
		return 0, false
	}
}

// dispatchResponse routes a reply frame to the pending *Request matching
// its id, silently dropping replies for unknown or no-longer-pending ids
// (the request may have already been Closed, or the frame may reference
// a stale id from before a reconnect).
func (c *Conn) dispatchResponse(item map[string]any, result any) {
	idVal, ok := item["id"]
	if !ok {
		return
	}
	id, ok := toInt64(idVal)
	if !ok {
		return
	}

	c.pendingMu.Lock()
	req, found := c.pending[id]
	c.pendingMu.Unlock()
	if !found {
		c.logger.Debugf("bjsonrpc: response for unknown or closed id %d dropped", id)
		return
	}

	var err error
	if errVal, ok := item["error"]; ok && errVal != nil {
		msg, _ := errVal.(string)
		err = &ServerError{Message: msg}
	}
	c.logger.Event(Receive, &id, "", 0, err)
	req.setResponse(result, err)
}

// replyUnknownFormat handles a decoded object that has neither "result"
// nor "method": per §4.G it is answered with "Unknown format", but only if
// it happens to carry an id (an id-bearing non-request, non-response
// object is itself a sign of a confused peer, but the notification-silence
// rule still applies: no id, no reply).
func (c *Conn) replyUnknownFormat(item map[string]any) {
	idVal, ok := item["id"]
	if !ok {
		return
	}
	id, ok := toInt64(idVal)
	if !ok {
		return
	}
	c.sendResponse(id, nil, "Unknown format")
}

// resolveTarget resolves an inbound method name to the Handler that
// should answer it and the (possibly stripped-of-object-prefix) method
// name to look up on it, per §4.D: an undotted name targets the root
// handler; a "<object>.<method>" name targets a hosted object, or fails
// with InvalidObjectIdentifierError if that name isn't currently hosted.
// "<object>.__delete__" is handled here directly: it deletes the object
// and reports (nil, "", nil) so the caller knows no further action (and
// no reply) is needed, since __delete__ is a reserved, reply-less method
// (§6).
func (c *Conn) resolveTarget(method string) (target Handler, methodName string, err error) {
	dot := strings.IndexByte(method, '.')
	if dot < 0 {
		return c.handler, method, nil
	}
	objName, rest := method[:dot], method[dot+1:]
	obj, ok := c.objects.lookup(objName)
	if !ok {
		return nil, "", &InvalidObjectIdentifierError{Name: objName}
	}
	if rest == deleteMethodName {
		c.objects.delete(objName, c.logger)
		return nil, "", nil
	}
	return obj, rest, nil
}

// dispatchRequest resolves, validates, and invokes one inbound request,
// then sends its reply — unless item carries no id, in which case no
// reply is ever sent, even if resolution, validation, or invocation
// fails (§4.G's notification semantics).
func (c *Conn) dispatchRequest(item map[string]any, method string, args []any, kwargs map[string]any) {
	var idPtr *int64
	if idVal, ok := item["id"]; ok {
		if id, ok2 := toInt64(idVal); ok2 {
			idPtr = &id
		}
	}
	c.logger.Event(Receive, idPtr, method, 0, nil)

	target, methodName, err := c.resolveTarget(method)
	if err != nil {
		c.replyError(idPtr, err)
		return
	}
	if target == nil {
		// "<object>.__delete__": handled entirely by resolveTarget, and
		// reserved methods never produce a reply.
		return
	}

	bm, err := target.GetMethod(methodName)
	if err != nil {
		c.replyError(idPtr, err)
		return
	}
	if err := bm.validate(kwargs); err != nil {
		c.replyError(idPtr, err)
		return
	}

	result, err := c.invoke(bm.Fn, args, kwargs)
	if err != nil {
		c.replyError(idPtr, err)
		return
	}
	if stream, ok := result.(Stream); ok {
		c.drainStream(stream, idPtr)
		return
	}
	c.replyResult(idPtr, result)
}

// invoke calls fn, recovering a panic into a formatted error the same way
// the Python original's dispatcher catches any Exception a handler
// raises: a panicking handler is reported like any other dispatch-level
// failure of a user handler (§7).
func (c *Conn) invoke(fn HandlerFunc, args []any, kwargs map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(c.ctx, args, kwargs)
}

// drainStream realizes pipe-mode on the serving side (§4.G): it sends one
// response frame per value the Stream yields, all sharing id, until the
// stream ends or errors. ctx is the connection's own Context so a
// long-running generator handler observes connection close instead of
// leaking.
func (c *Conn) drainStream(stream Stream, idPtr *int64) {
	for {
		value, ok, err := stream.Next(c.ctx)
		if err != nil {
			c.replyError(idPtr, err)
			return
		}
		if !ok {
			return
		}
		c.replyResult(idPtr, value)
	}
}

// replyResult sends a successful reply, or does nothing if idPtr is nil
// (the inbound frame was a notification).
func (c *Conn) replyResult(idPtr *int64, result any) {
	if idPtr == nil {
		return
	}
	c.sendResponse(*idPtr, result, "")
}

// replyError sends a failure reply formatted per §7, or does nothing if
// idPtr is nil.
func (c *Conn) replyError(idPtr *int64, err error) {
	if idPtr == nil {
		return
	}
	c.sendResponse(*idPtr, nil, formatHandlerError(err))
}

// sendResponse builds and enqueues one reply frame. If encodeFrame fails
// on the real result (a handler returned something dumpObject rejects),
// it falls back to an error response for the same id — resolving spec
// Open Question (a): the id used for that fallback is the id of the
// frame that failed to encode, captured explicitly here as a local
// variable rather than read back out of an enclosing loop variable the
// way the Python original's error path mistakenly did.
func (c *Conn) sendResponse(id int64, result any, errStr string) {
	frame := map[string]any{"id": id, "result": result, "error": nil}
	if errStr != "" {
		frame["result"] = nil
		frame["error"] = errStr
	}

	line, err := c.encodeFrame(frame)
	if err != nil {
		failedID := id
		fallback := map[string]any{
			"id":     failedID,
			"result": nil,
			"error":  fmt.Sprintf("InternalServerError: %v", err),
		}
		line, err = c.encodeFrame(fallback)
		if err != nil {
			c.logger.Errorf("bjsonrpc: failed to encode fallback error response for id %d: %v", failedID, err)
			return
		}
	}

	if c.isClosed() {
		return
	}
	c.writer.enqueue(line)
	c.logger.Event(Send, &id, "", 0, nil)
	if c.cfg.wireLogging {
		c.logger.Debugf("bjsonrpc: -> %s", line)
	}
}
