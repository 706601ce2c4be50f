// Copyright 2010 David Martinez Marti. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bjsonrpc

import "time"

// writeJob is one item in the writer pump's FIFO, mirroring the Python
// original's write_thread_queue entries: either a line to send, or an
// abort request that the pump acknowledges before exiting.
type writeJob struct {
	line  string
	abort bool
	done  chan struct{}
}

// writerPump is the single background serializer described in §4.H. All
// outbound frames — replies produced by the Dispatcher and calls made
// through a Proxy — are enqueued here instead of written directly, so
// writes from many goroutines are never interleaved on the wire. The queue
// holds up to 64 lines; producers block on socket latency only once that
// many are waiting to be written.
type writerPump struct {
	jobs            chan writeJob
	framer          *framer
	logger          Logger
	maxWriteTimeout time.Duration
}

func newWriterPump(f *framer, logger Logger, maxWriteTimeout time.Duration) *writerPump {
	return &writerPump{
		jobs:            make(chan writeJob, 64),
		framer:          f,
		logger:          logger,
		maxWriteTimeout: maxWriteTimeout,
	}
}

// run drains jobs until an abort item is processed. It is meant to be run
// in its own goroutine, owned by an errgroup.Group so Conn.Close can join
// it cleanly (see conn.go), the idiomatic replacement for the Python
// original's daemon thread.
//
// Each write is bounded by maxWriteTimeout the same way conn.go's
// readAndDispatch bounds each read by maxReadTimeout (§5: "read/write
// timeouts are clamped by class-level maxima"): a peer that stops draining
// its socket buffer blocks Write indefinitely otherwise, which would stall
// every producer behind this single pump.
func (w *writerPump) run() {
	for job := range w.jobs {
		if job.abort {
			close(job.done)
			return
		}
		if d, ok := w.framer.rwc.(deadliner); ok && w.maxWriteTimeout > 0 {
			_ = d.SetWriteDeadline(time.Now().Add(w.maxWriteTimeout))
		}
		if err := w.framer.writeLine(job.line); err != nil {
			w.logger.Debugf("bjsonrpc: write error: %v", err)
		}
	}
}

// enqueue schedules line to be written. It returns immediately while the
// queue has room; once 64 lines are queued and not yet written, it blocks
// until the pump takes one.
func (w *writerPump) enqueue(line string) {
	w.jobs <- writeJob{line: line}
}

// abortAndWait requests the pump stop after draining jobs already queued ahead of
// it, and blocks up to timeout for the acknowledgement, matching the 1s
// grace period Conn.Close uses in the Python original.
func (w *writerPump) abortAndWait(timeout time.Duration) bool {
	done := make(chan struct{})
	w.jobs <- writeJob{abort: true, done: done}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
