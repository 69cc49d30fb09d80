// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/nanomq"
)

// fakeDeliverer records every ProcessMessage handed to it, standing in
// for a Session in queue-actor tests that don't need a real socket.
type fakeDeliverer struct {
	peerID uuid.UUID

	mu        sync.Mutex
	delivered []nanomq.Message
	fail      bool
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{peerID: uuid.New()}
}

func (f *fakeDeliverer) PeerID() uuid.UUID { return f.peerID }

func (f *fakeDeliverer) Deliver(msg nanomq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.delivered = append(f.delivered, msg)
	return nil
}

func (f *fakeDeliverer) messages() []nanomq.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]nanomq.Message, len(f.delivered))
	copy(out, f.delivered)
	return out
}

// fakeRegistry resolves a peerId to its registered fakeDeliverer, used to
// exercise query-reply routing to an originator that isn't a subscriber.
type fakeRegistry struct {
	mu   sync.Mutex
	byID map[uuid.UUID]Deliverer
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{byID: make(map[uuid.UUID]Deliverer)}
}

func (r *fakeRegistry) add(d Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[d.PeerID()] = d
}

func (r *fakeRegistry) Lookup(peerID uuid.UUID) (Deliverer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[peerID]
	return d, ok
}

func newTestQueue(registry PeerRegistry) *Queue {
	return NewQueue("t1", 10000, registry, nanomq.DevNullLogger)
}

func TestQueueFanOutToAllSubscribers(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a, b := newFakeDeliverer(), newFakeDeliverer()
	q.Subscribe(a)
	q.Subscribe(b)

	msg := nanomq.Message{MessageID: uuid.New(), QueueName: "t1", Body: "hello"}
	require.NoError(t, q.Enqueue(msg))

	require.Eventually(t, func() bool {
		return len(a.messages()) == 1 && len(b.messages()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "hello", a.messages()[0].Body)
	assert.Equal(t, "hello", b.messages()[0].Body)
}

func TestQueueAtMostOneInflightPerSubscriber(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a := newFakeDeliverer()
	q.Subscribe(a)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1", Body: "m"}))
	}

	// Only the head item may be inflight to a until it acks.
	require.Eventually(t, func() bool { return len(a.messages()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, a.messages(), 1, "a second item must not be delivered before the first is acked")

	first := a.messages()[0]
	q.AckReceived(a.PeerID(), first.MessageID)

	require.Eventually(t, func() bool { return len(a.messages()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestQueueItemRemovedOnlyAfterAllSubscribersAck(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a, b := newFakeDeliverer(), newFakeDeliverer()
	q.Subscribe(a)
	q.Subscribe(b)

	id := uuid.New()
	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: id, QueueName: "t1", Body: "m"}))

	require.Eventually(t, func() bool {
		return len(a.messages()) == 1 && len(b.messages()) == 1
	}, time.Second, 10*time.Millisecond)

	q.AckReceived(a.PeerID(), id)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, q.Depth(), "item stays queued until every subscriber present at head selection has acked")

	q.AckReceived(b.PeerID(), id)
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, 10*time.Millisecond)
}

func TestQueueLateSubscriberMissesInflightItem(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a := newFakeDeliverer()
	q.Subscribe(a)
	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1", Body: "m"}))

	require.Eventually(t, func() bool { return len(a.messages()) == 1 }, time.Second, 10*time.Millisecond)

	b := newFakeDeliverer()
	q.Subscribe(b)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, b.messages(), "a subscriber joining after head selection must not receive the in-flight item")
}

func TestQueueQueryReplyRoutesToOriginatorOnly(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	originator := newFakeDeliverer()
	registry.add(originator)

	worker := newFakeDeliverer()
	q.Subscribe(worker)

	queryID := uuid.New()
	query := nanomq.Message{
		MessageID: queryID,
		PeerID:    originator.PeerID(),
		QueueName: "t1",
		Body:      "ping",
		IsQuery:   true,
	}
	require.NoError(t, q.Enqueue(query))

	require.Eventually(t, func() bool { return len(worker.messages()) == 1 }, time.Second, 10*time.Millisecond)
	q.AckReceived(worker.PeerID(), queryID)

	reply := nanomq.Message{
		MessageID:          uuid.New(),
		PeerID:             worker.PeerID(),
		QueueName:          "t1",
		Body:               "pong",
		IsReply:            true,
		InReplyToMessageID: queryID,
	}
	require.NoError(t, q.Enqueue(reply))

	require.Eventually(t, func() bool { return len(originator.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "pong", originator.messages()[0].Body)
	assert.Empty(t, worker.messages()[1:], "no second subscriber should see the reply")
	assert.Equal(t, 0, q.Depth(), "the query leaves the FIFO once its reply is routed")
}

func TestQueueUnmatchedReplyIsDroppedSilently(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	reply := nanomq.Message{
		MessageID:          uuid.New(),
		QueueName:          "t1",
		IsReply:            true,
		InReplyToMessageID: uuid.New(),
	}
	require.NoError(t, q.Enqueue(reply))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, q.Depth())
}

func TestQueueExpiryPreventsDeliveryToLateSubscriber(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	require.NoError(t, q.Enqueue(nanomq.Message{
		MessageID:     uuid.New(),
		QueueName:     "t1",
		Body:          "stale",
		ExpireSeconds: 1,
		EnqueuedAt:    time.Now(),
	}))

	time.Sleep(1200 * time.Millisecond)

	a := newFakeDeliverer()
	q.Subscribe(a)
	time.Sleep(700 * time.Millisecond)

	assert.Empty(t, a.messages())
	assert.Equal(t, 0, q.Depth())
}

func TestQueueSubscribeIsIdempotent(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a := newFakeDeliverer()
	q.Subscribe(a)
	q.Subscribe(a)
	q.Subscribe(a)
	q.Unsubscribe(a.PeerID())

	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1", Body: "x"}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, a.messages(), "unsubscribed peer must not receive further deliveries")
}

func TestQueueClearPreservesSubscribers(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a := newFakeDeliverer()
	q.Subscribe(a)
	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1", Body: "x"}))
	require.Eventually(t, func() bool { return len(a.messages()) == 1 }, time.Second, 10*time.Millisecond)

	q.Clear()
	assert.Equal(t, 0, q.Depth())

	id := uuid.New()
	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: id, QueueName: "t1", Body: "y"}))
	require.Eventually(t, func() bool { return len(a.messages()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestQueueBacklogCapRejectsEnqueue(t *testing.T) {
	registry := newFakeRegistry()
	q := NewQueue("t1", 2, registry, nanomq.DevNullLogger)
	defer q.Stop()

	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1"}))
	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1"}))
	err := q.Enqueue(nanomq.Message{MessageID: uuid.New(), QueueName: "t1"})
	require.ErrorIs(t, err, nanomq.ErrQueueFull)
}

func TestQueueRemovePeerReleasesInflight(t *testing.T) {
	registry := newFakeRegistry()
	q := newTestQueue(registry)
	defer q.Stop()

	a, b := newFakeDeliverer(), newFakeDeliverer()
	q.Subscribe(a)
	q.Subscribe(b)

	id := uuid.New()
	require.NoError(t, q.Enqueue(nanomq.Message{MessageID: id, QueueName: "t1", Body: "m"}))
	require.Eventually(t, func() bool { return len(a.messages()) == 1 }, time.Second, 10*time.Millisecond)

	q.RemovePeer(a.PeerID())

	// Once a is removed, fullyAcked should no longer wait on it.
	q.AckReceived(b.PeerID(), id)
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, 10*time.Millisecond)
}
