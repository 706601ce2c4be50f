// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// echoHandler answers "echo" with its first positional argument and
// "add" with the sum of two keyword arguments "a" and "b", the same
// minimal fixture shape as the scenario table in spec.md §8.
type echoHandler struct {
	shutdown chan struct{}
}

func (h *echoHandler) GetMethod(name string) (*BoundMethod, error) {
	switch name {
	case "echo":
		return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			if len(args) == 0 {
				return nil, NewServerError("echo requires one positional argument")
			}
			return args[0], nil
		}}, nil
	case "add":
		return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			// Integral JSON numbers round-trip through decodeFrame as
			// int64, not float64 — see codec.go's normalizeNumbers,
			// which preserves the JSON int/float distinction the way
			// Python's json module natively does.
			a, _ := kwargs["a"].(int64)
			b, _ := kwargs["b"].(int64)
			return a + b, nil
		}}, nil
	case "boom":
		return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return nil, NewServerError("kaboom")
		}}, nil
	case "count":
		return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			n, _ := args[0].(int64)
			values := make([]any, 0, n)
			for i := int64(0); i < n; i++ {
				values = append(values, i)
			}
			return SliceStream(values), nil
		}}, nil
	}
	return nil, NewServerError("MethodNotFound: %q", name)
}

func (h *echoHandler) Shutdown() {
	if h.shutdown != nil {
		close(h.shutdown)
	}
}

func newConnPair(t *testing.T, handler Handler) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewConn(a, handler, WithThreaded(false))
	cb := NewConn(b, handler, WithThreaded(false))
	go ca.Serve()
	go cb.Serve()
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestCallEchoRoundTrip(t *testing.T) {
	ca, cb := newConnPair(t, &echoHandler{})
	_ = cb

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := ca.Call.Call(ctx, "echo", []any{"hello"}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if diff := cmp.Diff("hello", got); diff != "" {
		t.Fatalf("echo result mismatch (-want +got):\n%s", diff)
	}
}

func TestCallAddWithKeywordArgs(t *testing.T) {
	ca, _ := newConnPair(t, &echoHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := ca.Call.Call(ctx, "add", nil, map[string]any{"a": int64(2), "b": int64(3)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	// Integral results round-trip back through decodeFrame as int64, not
	// float64 — see the "add" handler's comment above.
	if diff := cmp.Diff(int64(5), got); diff != "" {
		t.Fatalf("add result mismatch (-want +got):\n%s", diff)
	}
}

func TestCallErrorIsReportedToCaller(t *testing.T) {
	ca, _ := newConnPair(t, &echoHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ca.Call.Call(ctx, "boom", nil, nil)
	if err == nil {
		t.Fatal("Call to a failing method returned nil error")
	}
	if err.Error() != "kaboom" {
		t.Fatalf("error = %q, want %q", err.Error(), "kaboom")
	}
}

func TestCallUnknownObjectIdentifierMessageIsClean(t *testing.T) {
	ca, _ := newConnPair(t, &echoHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ca.Call.Call(ctx, "nosuchobj.foo", nil, nil)
	if err == nil {
		t.Fatal("Call to a dotted unknown object name returned nil error")
	}
	// formatHandlerError must render InvalidObjectIdentifierError's own
	// clean Kind string, not re-wrap it with Go's package-qualified %T
	// (which would produce "*bjsonrpc.InvalidObjectIdentifierError: ...").
	if want := "InvalidObjectIdentifier: nosuchobj"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	ca, _ := newConnPair(t, &echoHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ca.Call.Call(ctx, "nope", nil, nil)
	if err == nil {
		t.Fatal("Call to an unknown method returned nil error")
	}
}

func TestNotifyProducesNoReply(t *testing.T) {
	ca, _ := newConnPair(t, &echoHandler{})

	if err := ca.Notify.Notify(context.Background(), "boom", nil, nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	// A Notify to a failing method must not leave a dangling response
	// that later confuses a genuine Call: issue a real call right after
	// and confirm it still gets the expected, matched-up result.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := ca.Call.Call(ctx, "echo", []any{"after-notify"}, nil)
	if err != nil {
		t.Fatalf("Call after Notify: %v", err)
	}
	if got != "after-notify" {
		t.Fatalf("got %v, want %q", got, "after-notify")
	}
}

func TestPipeDeliversMultipleResponses(t *testing.T) {
	ca, _ := newConnPair(t, &echoHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := ca.Pipe.Pipe(ctx, "count", []any{int64(3)}, nil)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer req.Close()

	var got []any
	for i := 0; i < 3; i++ {
		v, err := req.Value(ctx)
		if err != nil {
			t.Fatalf("Value #%d: %v", i, err)
		}
		got = append(got, v)
	}
	want := []any{int64(0), int64(1), int64(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pipe results mismatch (-want +got):\n%s", diff)
	}
}

func TestMethodAsyncInvokesCallback(t *testing.T) {
	a, b := net.Pipe()
	handler := &echoHandler{}
	ca := NewConn(a, handler, WithThreaded(false))
	cb := NewConn(b, handler, WithThreaded(false))
	go ca.Serve()
	go cb.Serve()
	defer ca.Close()
	defer cb.Close()

	results := make(chan any, 1)
	proxy := &Proxy{conn: ca, syncType: syncMethod, callback: func(value any, err error) {
		if err != nil {
			results <- err
			return
		}
		results <- value
	}}

	if _, err := proxy.MethodAsync(context.Background(), "echo", []any{"async"}, nil); err != nil {
		t.Fatalf("MethodAsync: %v", err)
	}

	select {
	case got := <-results:
		if got != "async" {
			t.Fatalf("callback got %v, want %q", got, "async")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MethodAsync callback")
	}
}

func TestHostedObjectRoundTrip(t *testing.T) {
	hosted := &hostedCounter{}
	root := &rootWithHostedObject{hosted: hosted}

	ca, _ := newConnPair(t, root)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := ca.Call.Call(ctx, "getCounter", nil, nil)
	if err != nil {
		t.Fatalf("Call getCounter: %v", err)
	}
	remote, ok := got.(*RemoteObject)
	if !ok {
		t.Fatalf("getCounter result = %T, want *RemoteObject", got)
	}

	bumped, err := remote.Call.Call(ctx, "bump", nil, nil)
	if err != nil {
		t.Fatalf("Call bump: %v", err)
	}
	if diff := cmp.Diff(int64(1), bumped); diff != "" {
		t.Fatalf("bump result mismatch (-want +got):\n%s", diff)
	}

	remote.Close()
}

// hostedCounter is a trivial Handler exposing one stateful method, used
// to exercise the hosted-object table's registration and dispatch path.
type hostedCounter struct {
	n int
}

func (h *hostedCounter) GetMethod(name string) (*BoundMethod, error) {
	if name != "bump" {
		return nil, NewServerError("MethodNotFound: %q", name)
	}
	return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		h.n++
		return int64(h.n), nil
	}}, nil
}

// rootWithHostedObject is a root Handler whose only method returns a
// hosted object, exercising dumpObject's Handler branch end-to-end.
type rootWithHostedObject struct {
	hosted *hostedCounter
}

func (r *rootWithHostedObject) GetMethod(name string) (*BoundMethod, error) {
	if name != "getCounter" {
		return nil, NewServerError("MethodNotFound: %q", name)
	}
	return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return r.hosted, nil
	}}, nil
}

func TestCloseUnblocksPendingCall(t *testing.T) {
	a, b := net.Pipe()
	blocking := make(chan struct{})
	handler := handlerFunc(func(name string) (*BoundMethod, error) {
		if name != "block" {
			return nil, NewServerError("MethodNotFound: %q", name)
		}
		return &BoundMethod{Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			<-blocking
			return nil, nil
		}}, nil
	})

	ca := NewConn(a, nil)
	cb := NewConn(b, handler)
	go ca.Serve()
	go cb.Serve()
	defer close(blocking)
	defer cb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := ca.Call.Call(ctx, "block", nil, nil)
		done <- err
	}()

	// Give the call time to register as pending before closing.
	time.Sleep(50 * time.Millisecond)
	if err := ca.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if err != ErrConnClosed {
			t.Fatalf("Call error after Close = %v, want %v", err, ErrConnClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock the pending Call")
	}
}

// handlerFunc adapts a plain function to Handler, for small single-method
// fixtures in tests that don't need a dedicated named type.
type handlerFunc func(name string) (*BoundMethod, error)

func (f handlerFunc) GetMethod(name string) (*BoundMethod, error) { return f(name) }

func TestNextIDIsMonotonicAndSharedWithObjectTable(t *testing.T) {
	a, _ := net.Pipe()
	c := NewConn(a, nil)
	defer c.Close()

	first := c.nextID()
	second := c.nextID()
	if second <= first {
		t.Fatalf("nextID not monotonic: %d then %d", first, second)
	}

	obj := &hostedCounter{}
	name := c.objects.register(obj, c.nextID)
	if name == "" {
		t.Fatal("register returned empty name")
	}
	if want := fmt.Sprintf("hostedcounter_%04x", second+1); name != want {
		t.Fatalf("register name = %q, want %q (next value of the shared id counter)", name, want)
	}
	sameName := c.objects.register(obj, c.nextID)
	if name != sameName {
		t.Fatalf("register not idempotent: %q then %q", name, sameName)
	}
}

func TestApplyParamsEncoding(t *testing.T) {
	cases := []struct {
		name    string
		args    []any
		kwargs  map[string]any
		want    map[string]any
	}{
		{
			name: "positional only",
			args: []any{"x"},
			want: map[string]any{"params": []any{"x"}},
		},
		{
			name:   "keyword only",
			kwargs: map[string]any{"a": 1},
			want:   map[string]any{"params": map[string]any{"a": 1}},
		},
		{
			name:   "both",
			args:   []any{"x"},
			kwargs: map[string]any{"a": 1},
			want: map[string]any{
				"params":   []any{"x"},
				"kwparams": map[string]any{"a": 1},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := map[string]any{}
			applyParams(frame, tc.args, tc.kwargs)
			for k, v := range tc.want {
				if diff := cmp.Diff(v, frame[k]); diff != "" {
					t.Errorf("frame[%q] mismatch (-want +got):\n%s", k, diff)
				}
			}
		})
	}
}

func TestDuplicateRequestIDErrorMessage(t *testing.T) {
	err := &DuplicateRequestIDError{ID: 7}
	if got, want := err.Error(), fmt.Sprintf("bjsonrpc: request id %d is already pending", 7); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
