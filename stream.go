// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import "context"

// Stream is returned by a HandlerFunc to realize pipe-mode's "one request,
// many responses" semantics (§4.G, design note §9): the Dispatcher calls
// Next repeatedly, sending one response frame per yielded value, all
// sharing the inbound request's id, until Next reports ok=false or an
// error. This is the Go analogue of the Python original's generator
// functions (inspect.isgeneratorfunction(fn)).
type Stream interface {
	// Next blocks until the next value is ready. ok is false once the
	// sequence is exhausted; err, if non-nil, ends the stream with an
	// error frame sharing the request's id ("generator failure
	// mid-stream", §7) — responses already emitted remain valid.
	Next(ctx context.Context) (value any, ok bool, err error)
}

// sliceStream yields a fixed, pre-computed sequence of values — the
// simplest possible Stream, useful for handlers whose "generator" is just
// `for _, v := range values`.
type sliceStream struct {
	values []any
	pos    int
}

// SliceStream returns a Stream that yields each element of values in
// order, then ends.
func SliceStream(values []any) Stream {
	return &sliceStream{values: values}
}

func (s *sliceStream) Next(ctx context.Context) (any, bool, error) {
	if s.pos >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.pos]
	s.pos++
	return v, true, nil
}

// ChanItem is one element of a channel-backed Stream.
type ChanItem struct {
	value any
	err   error
}

// NewChanItem constructs a successful ChanItem.
func NewChanItem(value any) ChanItem { return ChanItem{value: value} }

// NewChanItemError constructs a failing ChanItem that ends the stream
// with err once received.
func NewChanItemError(err error) ChanItem { return ChanItem{err: err} }

// chanStream adapts a channel into a Stream, for handlers that produce
// values from a goroutine rather than up front.
type chanStream struct {
	items <-chan ChanItem
}

// ChanStream returns a Stream backed by items. The producing goroutine
// should send one ChanItem per yielded value and close items when done;
// sending a ChanItem built with NewChanItemError ends the stream with
// that error (and no further items are read).
func ChanStream(items <-chan ChanItem) Stream {
	return &chanStream{items: items}
}

func (s *chanStream) Next(ctx context.Context) (any, bool, error) {
	select {
	case item, ok := <-s.items:
		if !ok {
			return nil, false, nil
		}
		if item.err != nil {
			return nil, false, item.err
		}
		return item.value, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
