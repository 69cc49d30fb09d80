// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
)

// Config holds every broker tunable from SPEC_FULL.md §4.9, exported for
// callers who would rather build one directly than chain Options.
type Config struct {
	Address         string
	AckTimeout      time.Duration
	MaxFrameBytes   uint32
	MaxQueueBacklog int
	Logger          *nanomq.Logger
}

// DefaultConfig returns a Config populated with the protocol's default
// tunables and an address bound to DEFAULT_PORT on every interface.
func DefaultConfig() *Config {
	return &Config{
		Address:         fmt.Sprintf(":%d", nanomq.DefaultPort),
		AckTimeout:      nanomq.DefaultAckTimeout,
		MaxFrameBytes:   nanomq.DefaultMaxFrameBytes,
		MaxQueueBacklog: nanomq.DefaultMaxQueueBacklog,
		Logger:          nanomq.DefaultLogger,
	}
}

// Option configures a Server at construction time.
type Option func(*Config)

// WithAddress sets the listen address (host:port, or :port for all
// interfaces).
func WithAddress(addr string) Option {
	return func(c *Config) { c.Address = addr }
}

// WithAckTimeout overrides ACK_TIMEOUT_MS.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) { c.AckTimeout = d }
}

// WithMaxFrameBytes overrides MAX_FRAME_BYTES.
func WithMaxFrameBytes(n uint32) Option {
	return func(c *Config) { c.MaxFrameBytes = n }
}

// WithMaxQueueBacklog overrides the per-queue backlog cap that resolves
// the backpressure Open Question from spec.md §9.
func WithMaxQueueBacklog(n int) Option {
	return func(c *Config) { c.MaxQueueBacklog = n }
}

// WithLogger sets the server's logger. Unset falls back to
// nanomq.DefaultLogger.
func WithLogger(l *nanomq.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Statistics is a point-in-time snapshot of server activity.
type Statistics struct {
	ActiveSessions int
	QueueCount     int
}

// Server accepts peer connections and owns the queue store (C3, C5, C6).
type Server struct {
	cfg    *Config
	logger *nanomq.Logger
	store  *Store

	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// New builds a Server from the given options; it does not start
// listening until Start is called.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = nanomq.DefaultLogger
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[uuid.UUID]*Session),
	}
	s.store = NewStore(cfg.MaxQueueBacklog, s, s.logger)
	return s
}

// Lookup implements PeerRegistry for the store's queues.
func (s *Server) Lookup(peerID uuid.UUID) (Deliverer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[peerID]
	if !ok {
		return nil, false
	}
	return sess, true
}

func (s *Server) registerSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.peerID] = sess
}

func (s *Server) unregisterSession(peerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, peerID)
}

// Start binds the listen address and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("nanomq: listen %s: %w", s.cfg.Address, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("broker listening on %s", ln.Addr())
	return nil
}

// Addr returns the listener's bound address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("accept error: %v", err)
				return
			}
		}

		sess := newSession(s, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.serve()
		}()
	}
}

// Statistics returns a snapshot of the broker's current activity.
func (s *Server) Statistics() Statistics {
	s.mu.RLock()
	active := len(s.sessions)
	s.mu.RUnlock()
	return Statistics{ActiveSessions: active, QueueCount: s.store.Len()}
}

// Stop closes the listener and the connection of every session that has
// completed its Hello, waits for all sessions to finish, and stops every
// queue actor. Safe to call more than once; only the first call does any
// work.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.mu.RLock()
		for _, sess := range s.sessions {
			sess.conn.Close()
		}
		s.mu.RUnlock()
		s.wg.Wait()
		s.store.Close()
	})
	return err
}
