// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
)

// Store is the server's map of named queues. Names are case-insensitive
// per §3; the store's lock guards only the map itself, and is released
// once a Queue actor handle is found or created, before any dispatch
// work happens, per the store -> queue -> subscribers lock ordering.
type Store struct {
	backlogCap int
	registry   PeerRegistry
	logger     *nanomq.Logger

	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewStore creates an empty Store. backlogCap bounds every queue it creates.
func NewStore(backlogCap int, registry PeerRegistry, logger *nanomq.Logger) *Store {
	return &Store{
		backlogCap: backlogCap,
		registry:   registry,
		logger:     logger,
		queues:     make(map[string]*Queue),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(name)
}

// GetOrCreate returns the named queue's actor handle, creating it (and
// starting its goroutine) on first use.
func (s *Store) GetOrCreate(name string) *Queue {
	key := normalizeName(name)

	s.mu.RLock()
	q, ok := s.queues[key]
	s.mu.RUnlock()
	if ok {
		return q
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[key]; ok {
		return q
	}
	q = NewQueue(name, s.backlogCap, s.registry, s.logger)
	s.queues[key] = q
	return q
}

// Lookup returns the named queue's actor handle without creating it.
func (s *Store) Lookup(name string) (*Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[normalizeName(name)]
	return q, ok
}

// RemovePeerEverywhere removes peerID from every queue's subscriber set,
// as required on session teardown (§4.3).
func (s *Store) RemovePeerEverywhere(peerID uuid.UUID) {
	s.mu.RLock()
	queues := make([]*Queue, 0, len(s.queues))
	for _, q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	for _, q := range queues {
		q.RemovePeer(peerID)
	}
}

// Len returns the number of queues currently known to the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues)
}

// Close stops every queue actor. Used on server shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		q.Stop()
	}
}
