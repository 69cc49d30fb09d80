// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ack implements the per-peer ack tracker (C4): a sender
// allocates a slot keyed by messageId before writing bytes to the socket,
// then waits on it up to a timeout. A background reaper sweeps slots that
// outlived the timeout without being acked.
package ack

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type slot struct {
	createdAt time.Time
	done      chan struct{}
	acked     bool
}

// Tracker is a per-peer map of outstanding message IDs to wait handles
// with expiry. It is safe for concurrent use by a session's send path and
// its reaper goroutine.
type Tracker struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[uuid.UUID]*slot

	presumedDead uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Tracker and starts its background reaper, which scans the
// map at least once per timeout/2 and reaps slots older than timeout.
func New(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	t := &Tracker{
		timeout: timeout,
		slots:   make(map[uuid.UUID]*slot),
		stop:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.reapLoop()
	return t
}

// Alloc registers a slot for messageId. Callers MUST allocate before
// writing the corresponding command to the socket, per §4.4.
func (t *Tracker) Alloc(messageID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[messageID] = &slot{
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Wait blocks until messageId's slot is acked, the tracker is stopped, or
// ctx is done, whichever comes first. It reports whether an ack arrived.
// A slot that was never allocated, or is no longer in the map, makes
// Wait return false at once without blocking (no-op ack paths, e.g.
// CommandAck itself, never allocate one).
func (t *Tracker) Wait(ctx context.Context, messageID uuid.UUID) bool {
	t.mu.Lock()
	s, ok := t.slots[messageID]
	t.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case <-s.done:
		t.mu.Lock()
		acked := s.acked
		t.mu.Unlock()
		return acked
	case <-ctx.Done():
		return false
	case <-t.stop:
		return false
	}
}

// Ack signals the slot for messageId, if one is still outstanding. A
// CommandAck for an unknown or already-resolved messageId is ignored,
// since it may legitimately arrive after the slot was reaped.
func (t *Tracker) Ack(messageID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[messageID]
	if !ok {
		return
	}
	s.acked = true
	delete(t.slots, messageID)
	close(s.done)
}

// PresumedDeadCount returns the number of slots reaped without an ack.
func (t *Tracker) PresumedDeadCount() uint64 {
	return atomic.LoadUint64(&t.presumedDead)
}

// Stop releases all outstanding waiters (they observe no ack) and halts
// the reaper. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.wg.Wait()
}

func (t *Tracker) reapLoop() {
	defer t.wg.Done()

	interval := t.timeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.reapExpired()
		case <-t.stop:
			return
		}
	}
}

func (t *Tracker) reapExpired() {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.slots {
		if now.Sub(s.createdAt) > t.timeout {
			delete(t.slots, id)
			atomic.AddUint64(&t.presumedDead, 1)
			// Reaping never signals done: per §4.4 this is an explicit
			// timeout, not a spurious ack. Waiters observe it through their
			// own ctx, so no close here; the entry simply vanishes
			// and any future Ack for it becomes a no-op.
		}
	}
}
