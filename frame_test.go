// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// nopCloserRWC adapts a bytes.Buffer-backed reader/writer pair into an
// io.ReadWriteCloser for framer tests, the same shape
// modelcontextprotocol-go-sdk/mcp/transport_test.go uses for its
// Test_ioConn_Read_BadTrailingData table.
type nopCloserRWC struct {
	io.Reader
	io.Writer
}

func (nopCloserRWC) Close() error { return nil }

func TestFramerReadLineSplitsOnNewline(t *testing.T) {
	r := strings.NewReader("{\"a\":1}\n{\"b\":2}\n")
	f := newFramer(nopCloserRWC{Reader: r, Writer: io.Discard})

	line, err := f.readLine()
	if err != nil {
		t.Fatalf("readLine #1: %v", err)
	}
	if line != `{"a":1}` {
		t.Fatalf("readLine #1 = %q, want %q", line, `{"a":1}`)
	}

	line, err = f.readLine()
	if err != nil {
		t.Fatalf("readLine #2: %v", err)
	}
	if line != `{"b":2}` {
		t.Fatalf("readLine #2 = %q, want %q", line, `{"b":2}`)
	}
}

func TestFramerReadLineReportsEOF(t *testing.T) {
	r := strings.NewReader("partial frame with no newline")
	f := newFramer(nopCloserRWC{Reader: r, Writer: io.Discard})

	_, err := f.readLine()
	eofErr, ok := err.(*EOFError)
	if !ok {
		t.Fatalf("readLine error = %v (%T), want *EOFError", err, err)
	}
	if eofErr.Unconsumed != len("partial frame with no newline") {
		t.Fatalf("Unconsumed = %d, want %d", eofErr.Unconsumed, len("partial frame with no newline"))
	}
}

func TestFramerHasBufferedLine(t *testing.T) {
	r := strings.NewReader("{\"a\":1}\n{\"b\":2}\n")
	f := newFramer(nopCloserRWC{Reader: r, Writer: io.Discard})

	if f.hasBufferedLine() {
		t.Fatal("hasBufferedLine before any read = true, want false")
	}
	if _, err := f.readLine(); err != nil {
		t.Fatalf("readLine: %v", err)
	}
	// The second frame's bytes were already pulled into the buffer by the
	// first readLine's chunked recv, so a second line should already be
	// available without touching the (exhausted) reader again.
	if !f.hasBufferedLine() {
		t.Fatal("hasBufferedLine after first readLine = false, want true")
	}
}

func TestFramerWriteLineAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	f := newFramer(nopCloserRWC{Reader: strings.NewReader(""), Writer: &buf})

	if err := f.writeLine(`{"hello":"world"}`); err != nil {
		t.Fatalf("writeLine: %v", err)
	}
	if got, want := buf.String(), "{\"hello\":\"world\"}\n"; got != want {
		t.Fatalf("writeLine wrote %q, want %q", got, want)
	}
}

func TestFramerWriteLinePanicsOnEmbeddedNewline(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("writeLine with embedded newline did not panic")
		}
	}()
	var buf bytes.Buffer
	f := newFramer(nopCloserRWC{Reader: strings.NewReader(""), Writer: &buf})
	_ = f.writeLine("line one\nline two")
}
