// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nanomq

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers per the Misuse/Transport rows of the
// error handling table: fail fast rather than block or panic.
var (
	// ErrDisconnected is returned when Enqueue/Subscribe/Query is called
	// on a client that is not currently connected.
	ErrDisconnected = errors.New("nanomq: not connected")

	// ErrQueueFull is returned by the broker when a queue's backlog has
	// reached its configured cap.
	ErrQueueFull = errors.New("nanomq: queue full")

	// ErrSessionClosed is returned by session-scoped operations once the
	// peer's connection has been torn down.
	ErrSessionClosed = errors.New("nanomq: session closed")
)

// ProtocolError marks a framing/command violation: CRC mismatch, unknown
// command type, empty queue name where one is required, or an oversize
// frame. On the broker, one raised while reading or handling a peer's
// frame closes that session; on the client, one raised while reading a
// frame tears down the connection. The client also returns one from
// Enqueue for an empty queue name, and reports an unexpected broker
// command or an empty-queue reply with one through ExceptionOccurred;
// those do not close the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("nanomq: protocol error: %s", e.Reason)
}

func newProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// ProtocolErrorf builds a *ProtocolError, for use by callers outside this
// package (session handlers rejecting a malformed command).
func ProtocolErrorf(format string, args ...interface{}) *ProtocolError {
	return newProtocolError(format, args...)
}

// TimeoutError reports an ack or query reply that did not arrive in time.
// It is never fatal: ack timeouts increment a counter, query timeouts
// surface as a nil reply to the caller.
type TimeoutError struct {
	MessageID string
	Kind      string // "ack" or "query"
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("nanomq: %s timeout for message %s", e.Kind, e.MessageID)
}
