// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/ack"
)

type sessionState int32

const (
	stateAwaitingHello sessionState = iota
	stateReady
	stateClosed
)

// Session is a single peer connection's protocol engine: it owns the
// receive buffer, tracks the peer's identity and subscriptions, and
// drives the AwaitingHello → Ready state machine of §4.3.
type Session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader

	maxFrameBytes uint32
	ackTimeout    time.Duration

	state  atomic.Int32
	peerID uuid.UUID

	acks *ack.Tracker

	mu            sync.Mutex
	subscriptions map[string]struct{}
	// pendingDeliveries maps a ProcessMessage's messageId to the queue it
	// was delivered from, so an inbound CommandAck can be routed back to
	// the right Queue actor.
	pendingDeliveries map[uuid.UUID]string

	outbox chan nanomq.Command

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(server *Server, conn net.Conn) *Session {
	s := &Session{
		server:            server,
		conn:              conn,
		reader:            bufio.NewReader(conn),
		maxFrameBytes:     server.cfg.MaxFrameBytes,
		ackTimeout:        server.cfg.AckTimeout,
		acks:              ack.New(server.cfg.AckTimeout),
		subscriptions:     make(map[string]struct{}),
		pendingDeliveries: make(map[uuid.UUID]string),
		outbox:            make(chan nanomq.Command, 256),
		closed:            make(chan struct{}),
	}
	s.state.Store(int32(stateAwaitingHello))
	return s
}

// PeerID implements Deliverer.
func (s *Session) PeerID() uuid.UUID { return s.peerID }

// Deliver enqueues a ProcessMessage frame for msg onto the session's
// outbound queue. It never blocks the dispatcher: a full outbox is
// treated as the peer being too slow and the delivery is dropped; the
// subscriber is not marked in-flight for the item, so the next run of
// the queue actor's pump tries it again.
func (s *Session) Deliver(msg nanomq.Message) error {
	cmd := nanomq.Command{Type: nanomq.CmdProcessMessage, Message: msg}

	s.mu.Lock()
	s.pendingDeliveries[msg.MessageID] = msg.QueueName
	s.mu.Unlock()

	// Allocate the ack slot before the frame reaches the outbox, so it
	// exists before writeLoop can put the frame on the wire, per §4.4.
	// The broker is the sender for ProcessMessage, so it owns this side
	// of the dual-ack: a slot the reaper later reaps without an ack
	// counts toward presumedDeadCommandCount for this peer. A frame the
	// outbox does not take drops its slot again.
	s.acks.Alloc(msg.MessageID)

	select {
	case s.outbox <- cmd:
		return nil
	case <-s.closed:
		s.mu.Lock()
		delete(s.pendingDeliveries, msg.MessageID)
		s.mu.Unlock()
		s.acks.Ack(msg.MessageID)
		return nanomq.ErrSessionClosed
	default:
		s.mu.Lock()
		delete(s.pendingDeliveries, msg.MessageID)
		s.mu.Unlock()
		s.acks.Ack(msg.MessageID)
		return errors.New("nanomq: session outbox full")
	}
}

// serve runs the session's read and write loops until the connection
// ends, then performs the §4.3 teardown cleanup.
func (s *Session) serve() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	s.readLoop()

	s.closeOnce.Do(func() { close(s.closed) })
	s.conn.Close()
	wg.Wait()
	s.acks.Stop()
	s.teardown()
}

func (s *Session) writeLoop() {
	for {
		select {
		case cmd := <-s.outbox:
			if err := nanomq.WriteCommand(s.conn, &cmd); err != nil {
				s.server.logger.Warn("session %s: write failed: %v", s.peerID, err)
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) readLoop() {
	for {
		cmd, err := nanomq.ReadCommand(s.reader, s.maxFrameBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.server.logger.Debug("session %s: read error: %v", s.peerID, err)
			}
			return
		}

		if s.state.Load() == int32(stateAwaitingHello) {
			if cmd.Type != nanomq.CmdHello {
				s.server.logger.Warn("session: non-Hello frame before handshake, closing")
				return
			}
			s.handleHello(cmd)
			continue
		}

		if !s.dispatch(cmd) {
			return
		}
	}
}

func (s *Session) handleHello(cmd nanomq.Command) {
	s.peerID = cmd.Message.PeerID
	if s.peerID == uuid.Nil {
		s.peerID = uuid.New()
	}
	s.state.Store(int32(stateReady))
	s.server.registerSession(s)

	reply := nanomq.Command{Type: nanomq.CmdHello, Message: nanomq.Message{PeerID: s.peerID}}
	select {
	case s.outbox <- reply:
	case <-s.closed:
	}
}

// dispatch processes one Ready-state command and returns false if the
// session must close.
func (s *Session) dispatch(cmd nanomq.Command) bool {
	var procErr error

	switch cmd.Type {
	case nanomq.CmdEnqueue:
		procErr = s.handleEnqueue(cmd.Message)
	case nanomq.CmdSubscribe:
		s.handleSubscribe(cmd.Message.QueueName)
	case nanomq.CmdUnsubscribe:
		s.handleUnsubscribe(cmd.Message.QueueName)
	case nanomq.CmdClear:
		s.handleClear(cmd.Message.QueueName)
	case nanomq.CmdCommandAck:
		s.handleCommandAck(cmd.Message.MessageID)
		return true // no ack-of-ack
	case nanomq.CmdProcessMessage:
		s.server.logger.Warn("session %s: unexpected client-originated ProcessMessage, closing", s.peerID)
		return false
	default:
		s.server.logger.Warn("session %s: unknown command type %d, closing", s.peerID, cmd.Type)
		return false
	}

	var pe *nanomq.ProtocolError
	if errors.As(procErr, &pe) {
		s.server.logger.Warn("session %s: %v", s.peerID, procErr)
		return false
	}

	ackCmd := nanomq.Command{Type: nanomq.CmdCommandAck, Message: nanomq.Message{MessageID: cmd.Message.MessageID}}
	select {
	case s.outbox <- ackCmd:
	case <-s.closed:
		return false
	}
	return true
}

func (s *Session) handleEnqueue(msg nanomq.Message) error {
	if msg.QueueName == "" {
		return nanomq.ProtocolErrorf("empty queueName on Enqueue")
	}
	q := s.server.store.GetOrCreate(msg.QueueName)
	return q.Enqueue(msg)
}

func (s *Session) handleSubscribe(queueName string) {
	q := s.server.store.GetOrCreate(queueName)
	q.Subscribe(s)
	s.mu.Lock()
	s.subscriptions[normalizeName(queueName)] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) handleUnsubscribe(queueName string) {
	if q, ok := s.server.store.Lookup(queueName); ok {
		q.Unsubscribe(s.peerID)
	}
	s.mu.Lock()
	delete(s.subscriptions, normalizeName(queueName))
	s.mu.Unlock()
}

func (s *Session) handleClear(queueName string) {
	if q, ok := s.server.store.Lookup(queueName); ok {
		q.Clear()
	}
}

func (s *Session) handleCommandAck(messageID uuid.UUID) {
	s.acks.Ack(messageID)

	s.mu.Lock()
	queueName, ok := s.pendingDeliveries[messageID]
	if ok {
		delete(s.pendingDeliveries, messageID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if q, ok := s.server.store.Lookup(queueName); ok {
		q.AckReceived(s.peerID, messageID)
	}
}

// teardown implements the session-end cleanup: remove this peer from
// every queue's subscriber set (Queue.RemovePeer) and from the server's
// session registry. In-flight query entries are left as they are: a
// reply to a query this peer originated finds no session and is dropped,
// and queries that were waiting on a reply from this peer are not
// released; their requesters wait out their own timeout.
func (s *Session) teardown() {
	s.state.Store(int32(stateClosed))
	if s.peerID != uuid.Nil {
		s.server.store.RemovePeerEverywhere(s.peerID)
		s.server.unregisterSession(s.peerID)
	}
}
