// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package broker implements the server side of the protocol: the queue
// store and dispatcher (C5, C6) and the per-connection peer session (C3)
// that feeds them.
package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
)

// Deliverer is the dispatcher's view of a connected peer: enough to push
// a ProcessMessage frame without knowing anything about sockets. Session
// implements this.
type Deliverer interface {
	PeerID() uuid.UUID
	Deliver(msg nanomq.Message) error
}

// PeerRegistry resolves a peerId to its live session, independent of any
// particular queue's subscriber set. A query's reply is routed to its
// originator this way; the originator need not be a subscriber of the
// queue it queried.
type PeerRegistry interface {
	Lookup(peerID uuid.UUID) (Deliverer, bool)
}

type queueItem struct {
	msg     nanomq.Message
	subs    map[uuid.UUID]struct{}
	acked   map[uuid.UUID]struct{}
	isQuery bool
}

func (it *queueItem) expired(now time.Time) bool {
	return it.msg.Expired(now)
}

func (it *queueItem) fullyAcked(subscribers map[uuid.UUID]*subscriberEntry) bool {
	for peerID := range it.subs {
		if _, acked := it.acked[peerID]; acked {
			continue
		}
		if _, stillSubscribed := subscribers[peerID]; stillSubscribed {
			return false
		}
	}
	return true
}

type subscriberEntry struct {
	deliverer Deliverer
	inflight  *uuid.UUID
}

type inFlightQuery struct {
	originator uuid.UUID
}

type queueAction int

const (
	actEnqueue queueAction = iota
	actSubscribe
	actUnsubscribe
	actClear
	actAck
	actRemovePeer
	actStats
)

type queueCmd struct {
	action queueAction
	msg    nanomq.Message
	deliv  Deliverer
	peerID uuid.UUID
	reply  chan queueResult
}

type queueResult struct {
	err   error
	depth int
	subs  int
}

// Queue is a single named FIFO with its subscriber set, run as a
// message-passing actor: one goroutine owns all of its state, so no
// locking is needed inside the actor body (§5's recommendation for
// eliminating a per-queue mutex).
type Queue struct {
	name       string
	createdAt  time.Time
	backlogCap int
	logger     *nanomq.Logger
	registry   PeerRegistry

	inbox    chan queueCmd
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	items           []*queueItem
	subscribers     map[uuid.UUID]*subscriberEntry
	inFlightQueries map[uuid.UUID]inFlightQuery
}

// NewQueue creates and starts a Queue actor.
func NewQueue(name string, backlogCap int, registry PeerRegistry, logger *nanomq.Logger) *Queue {
	q := &Queue{
		name:            name,
		createdAt:       time.Now(),
		backlogCap:      backlogCap,
		logger:          logger,
		registry:        registry,
		inbox:           make(chan queueCmd, 64),
		stop:            make(chan struct{}),
		subscribers:     make(map[uuid.UUID]*subscriberEntry),
		inFlightQueries: make(map[uuid.UUID]inFlightQuery),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) request(cmd queueCmd) queueResult {
	cmd.reply = make(chan queueResult, 1)
	select {
	case q.inbox <- cmd:
	case <-q.stop:
		return queueResult{err: nanomq.ErrSessionClosed}
	}
	return <-cmd.reply
}

// Enqueue appends msg to the queue (or, for a reply, routes it directly
// to the query's originator). It fails with ErrQueueFull once the queue's
// backlog cap is reached, per the backpressure resolution in SPEC_FULL.md.
func (q *Queue) Enqueue(msg nanomq.Message) error {
	res := q.request(queueCmd{action: actEnqueue, msg: msg})
	return res.err
}

// Subscribe adds d to the queue's subscriber set. Idempotent.
func (q *Queue) Subscribe(d Deliverer) {
	q.request(queueCmd{action: actSubscribe, deliv: d, peerID: d.PeerID()})
}

// Unsubscribe removes peerID from the subscriber set. Idempotent.
func (q *Queue) Unsubscribe(peerID uuid.UUID) {
	q.request(queueCmd{action: actUnsubscribe, peerID: peerID})
}

// Clear empties the queue's items while preserving its subscriber set.
func (q *Queue) Clear() {
	q.request(queueCmd{action: actClear})
}

// AckReceived records that peerID has acknowledged messageID, advancing
// that subscriber's delivery cursor and making it eligible for the next
// item addressed to it.
func (q *Queue) AckReceived(peerID uuid.UUID, messageID uuid.UUID) {
	msg := nanomq.Message{MessageID: messageID}
	q.request(queueCmd{action: actAck, peerID: peerID, msg: msg})
}

// RemovePeer drops peerID from the subscriber set and releases it from
// every pending item, as required on session teardown.
func (q *Queue) RemovePeer(peerID uuid.UUID) {
	q.request(queueCmd{action: actRemovePeer, peerID: peerID})
}

// Depth returns the number of items currently buffered.
func (q *Queue) Depth() int {
	return q.request(queueCmd{action: actStats}).depth
}

// Stop halts the queue's actor goroutine. Safe to call more than once.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-q.inbox:
			res := q.handle(cmd)
			cmd.reply <- res
			q.pump()
		case <-ticker.C:
			q.pump()
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) handle(cmd queueCmd) queueResult {
	switch cmd.action {
	case actEnqueue:
		return q.handleEnqueue(cmd.msg)
	case actSubscribe:
		q.subscribers[cmd.peerID] = &subscriberEntry{deliverer: cmd.deliv}
		return queueResult{}
	case actUnsubscribe:
		q.removeSubscriber(cmd.peerID)
		return queueResult{}
	case actClear:
		q.items = nil
		for _, s := range q.subscribers {
			s.inflight = nil
		}
		for id := range q.inFlightQueries {
			delete(q.inFlightQueries, id)
		}
		return queueResult{}
	case actAck:
		q.handleAck(cmd.peerID, cmd.msg.MessageID)
		return queueResult{}
	case actRemovePeer:
		q.removeSubscriber(cmd.peerID)
		return queueResult{}
	case actStats:
		return queueResult{depth: len(q.items), subs: len(q.subscribers)}
	default:
		return queueResult{}
	}
}

func (q *Queue) handleEnqueue(msg nanomq.Message) queueResult {
	if msg.IsReply {
		q.routeReply(msg)
		return queueResult{}
	}

	if len(q.items) >= q.backlogCap {
		return queueResult{err: nanomq.ErrQueueFull}
	}

	subs := make(map[uuid.UUID]struct{}, len(q.subscribers))
	for peerID := range q.subscribers {
		subs[peerID] = struct{}{}
	}

	it := &queueItem{
		msg:     msg,
		subs:    subs,
		acked:   make(map[uuid.UUID]struct{}),
		isQuery: msg.IsQuery,
	}
	q.items = append(q.items, it)

	if msg.IsQuery {
		q.inFlightQueries[msg.MessageID] = inFlightQuery{originator: msg.PeerID}
	}

	return queueResult{}
}

// routeReply implements §4.5(3): a reply is delivered only to the
// originator of the query it answers, and is dropped silently if no
// matching in-flight query exists.
func (q *Queue) routeReply(reply nanomq.Message) {
	fq, ok := q.inFlightQueries[reply.InReplyToMessageID]
	if !ok {
		return
	}
	delete(q.inFlightQueries, reply.InReplyToMessageID)
	q.removeItemByID(reply.InReplyToMessageID)

	d, ok := q.registry.Lookup(fq.originator)
	if !ok {
		return
	}
	if err := d.Deliver(reply); err != nil && q.logger != nil {
		q.logger.Warn("queue %s: failed to deliver reply to originator %s: %v", q.name, fq.originator, err)
	}
}

func (q *Queue) removeItemByID(messageID uuid.UUID) {
	for i, it := range q.items {
		if it.msg.MessageID == messageID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (q *Queue) handleAck(peerID, messageID uuid.UUID) {
	s, ok := q.subscribers[peerID]
	if ok && s.inflight != nil && *s.inflight == messageID {
		s.inflight = nil
	}
	for _, it := range q.items {
		if it.msg.MessageID != messageID {
			continue
		}
		it.acked[peerID] = struct{}{}
		return
	}
}

func (q *Queue) removeSubscriber(peerID uuid.UUID) {
	delete(q.subscribers, peerID)
	for _, it := range q.items {
		delete(it.subs, peerID)
		delete(it.acked, peerID)
	}
}

// pump attempts delivery for every pending item and reclaims items that
// are fully acked or expired. It never blocks: Deliverer.Deliver is
// expected to be a non-blocking handoff to the session's outbound queue.
func (q *Queue) pump() {
	now := time.Now()

	var kept []*queueItem
	for _, it := range q.items {
		if it.expired(now) {
			if it.isQuery {
				delete(q.inFlightQueries, it.msg.MessageID)
			}
			continue
		}

		if len(it.subs) == 0 {
			// No recipient is left for this item: it waits in the FIFO,
			// counting against the backlog cap, until a subscriber is
			// present to become its recipient.
			if len(q.subscribers) == 0 {
				kept = append(kept, it)
				continue
			}
			for peerID := range q.subscribers {
				it.subs[peerID] = struct{}{}
			}
		}

		for peerID := range it.subs {
			if _, acked := it.acked[peerID]; acked {
				continue
			}
			s, subscribed := q.subscribers[peerID]
			if !subscribed || s.inflight != nil {
				continue
			}
			if err := s.deliverer.Deliver(it.msg); err != nil {
				if q.logger != nil {
					q.logger.Warn("queue %s: delivery to %s failed: %v", q.name, peerID, err)
				}
				continue
			}
			id := it.msg.MessageID
			s.inflight = &id
		}

		if it.fullyAcked(q.subscribers) {
			// The item itself leaves the FIFO once every subscriber has
			// acked it. For a query this is independent of its reply:
			// inFlightQueries keeps the originator routable until a Reply
			// arrives or the queue is cleared. Expiry removes the entry
			// above only while the query is still in the FIFO; once the
			// item has left it, the entry no longer expires.
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
}
