// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nanomq implements an in-memory pub/sub and request/reply message
// broker: named queues of messages, fan-out to subscribers, and correlated
// query/reply exchanges, all over a length-delimited TCP framing.
package nanomq

import "time"

// DEFAULT_PORT is the broker's default listen port. Peers only need to
// agree on it when one side doesn't pass an explicit address.
const DefaultPort = 45784

// Protocol-level tunables, overridable via broker.Option / client.Option.
const (
	// DefaultAckTimeout is how long a sender waits for a CommandAck before
	// the slot is eligible for reaping.
	DefaultAckTimeout = 15000 * time.Millisecond

	// DefaultReconnectInterval is the client supervisor's tick period.
	DefaultReconnectInterval = 1000 * time.Millisecond

	// DefaultQueryTimeout is how long Query waits for a correlated reply.
	DefaultQueryTimeout = 60000 * time.Millisecond

	// DefaultMaxFrameBytes bounds a single frame's payload length.
	DefaultMaxFrameBytes = 16 * 1024 * 1024

	// DefaultMaxQueueBacklog bounds the number of items a queue holds
	// before Enqueue fails with ErrQueueFull.
	DefaultMaxQueueBacklog = 10000
)

// CommandType tags a Command's wire meaning. The set is append-only:
// receivers must reject unrecognized values as a protocol error.
type CommandType uint8

const (
	CmdHello CommandType = iota
	CmdEnqueue
	CmdSubscribe
	CmdUnsubscribe
	CmdClear
	CmdProcessMessage
	CmdCommandAck
)

func (t CommandType) String() string {
	switch t {
	case CmdHello:
		return "Hello"
	case CmdEnqueue:
		return "Enqueue"
	case CmdSubscribe:
		return "Subscribe"
	case CmdUnsubscribe:
		return "Unsubscribe"
	case CmdClear:
		return "Clear"
	case CmdProcessMessage:
		return "ProcessMessage"
	case CmdCommandAck:
		return "CommandAck"
	default:
		return "Unknown"
	}
}

// knownCommandType reports whether t is one of the append-only enum values
// this build understands; anything else is a protocol error for the session.
func knownCommandType(t CommandType) bool {
	return t <= CmdCommandAck
}
