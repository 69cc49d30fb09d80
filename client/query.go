// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
)

// pendingQuery is a QS (§3): created at Query, removed when the waiter
// returns or times out. replyCh carries at most one value and is closed
// once resolved, so a reconnect-driven release and a real reply race
// safely, whichever arrives first wins.
type pendingQuery struct {
	replyCh chan *nanomq.Message
	once    sync.Once
}

func (p *pendingQuery) resolve(reply *nanomq.Message) {
	p.once.Do(func() {
		p.replyCh <- reply
		close(p.replyCh)
	})
}

// correlator maps outbound query IDs to reply wait handles (C7). It is
// exclusively owned by the initiating client, grounded on the pending-map
// pattern of an async request/reply client.
type correlator struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pendingQuery
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uuid.UUID]*pendingQuery)}
}

// register allocates a QS for messageID and returns its reply channel.
func (c *correlator) register(messageID uuid.UUID) chan *nanomq.Message {
	p := &pendingQuery{replyCh: make(chan *nanomq.Message, 1)}
	c.mu.Lock()
	c.pending[messageID] = p
	c.mu.Unlock()
	return p.replyCh
}

// deregister removes a QS without resolving it, used once the waiter has
// observed a result (reply or timeout) and the slot is no longer needed.
func (c *correlator) deregister(messageID uuid.UUID) {
	c.mu.Lock()
	delete(c.pending, messageID)
	c.mu.Unlock()
}

// hasOpen reports whether a QS is still registered for messageID.
func (c *correlator) hasOpen(messageID uuid.UUID) bool {
	c.mu.Lock()
	_, ok := c.pending[messageID]
	c.mu.Unlock()
	return ok
}

// deliver resolves the QS for reply.InReplyToMessageID, if one is open,
// and reports whether it found one, the boolean §4.6 fires
// queryReplyReceived with.
func (c *correlator) deliver(reply nanomq.Message) bool {
	c.mu.Lock()
	p, ok := c.pending[reply.InReplyToMessageID]
	if ok {
		delete(c.pending, reply.InReplyToMessageID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	msg := reply
	p.resolve(&msg)
	return true
}

// releaseAll resolves every open QS with no reply, as required when the
// session tears down (§5 cancellation semantics).
func (c *correlator) releaseAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uuid.UUID]*pendingQuery)
	c.mu.Unlock()

	for _, p := range pending {
		p.resolve(nil)
	}
}
