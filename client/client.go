// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client implements the client side of the protocol: the query
// correlator (C7), the reconnect/health loop (C8), and the event surface
// (C9) layered on top of the shared frame codec and ack tracker.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/ack"
)

// Client connects to a broker, publishes and subscribes to queues, and
// issues correlated queries.
type Client struct {
	cfg    *Config
	logger *nanomq.Logger
	peerID uuid.UUID

	acks       *ack.Tracker
	correlator *correlator

	mu               sync.Mutex
	conn             net.Conn
	reader           *bufio.Reader
	connected        bool
	subscribedQueues map[string]string // normalized name -> original name, for replay

	outbox chan nanomq.Command

	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once
}

// New builds a Client from the given options. It does not connect until
// Start is called.
func New(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = nanomq.DefaultLogger
	}
	if cfg.PeerID == uuid.Nil {
		cfg.PeerID = uuid.New()
	}

	return &Client{
		cfg:              cfg,
		logger:           cfg.Logger,
		peerID:           cfg.PeerID,
		acks:             ack.New(cfg.AckTimeout),
		correlator:       newCorrelator(),
		subscribedQueues: make(map[string]string),
		outbox:           make(chan nanomq.Command, 256),
		stop:             make(chan struct{}),
	}
}

// PeerID returns this client's peer identity.
func (c *Client) PeerID() uuid.UUID { return c.peerID }

// Start begins the reconnect/health supervisor (C8), which makes the
// first connection attempt immediately. It returns once that first
// attempt has completed, successfully or not.
func (c *Client) Start() error {
	var firstErr error
	c.startOnce.Do(func() {
		firstErr = c.connect()
		c.wg.Add(1)
		go c.supervisorLoop()
	})
	return firstErr
}

// Stop disconnects and halts the supervisor. Outstanding acks are
// abandoned and every open query subscription is released with no reply.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.teardownConnection()
	c.wg.Wait()
	c.acks.Stop()
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// supervisorLoop is C8: once per ReconnectInterval, attempt a reconnect
// if the socket is absent.
func (c *Client) supervisorLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !c.isConnected() {
				if err := c.connect(); err != nil {
					c.logger.Debug("reconnect attempt failed: %v", err)
				}
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Client) connect() error {
	conn, err := net.Dial("tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("nanomq: dial %s: %w", c.cfg.Address, err)
	}

	reader := bufio.NewReader(conn)
	if err := c.handshake(conn, reader); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	select {
	case <-c.stop:
		// Stop has begun and may already have torn down: publishing this
		// connection now would leave it open with nobody to close it.
		c.mu.Unlock()
		conn.Close()
		return nanomq.ErrDisconnected
	default:
	}
	c.conn = conn
	c.reader = reader
	c.connected = true
	names := make([]string, 0, len(c.subscribedQueues))
	for _, name := range c.subscribedQueues {
		names = append(names, name)
	}
	c.mu.Unlock()

	c.wg.Add(2)
	go func() { defer c.wg.Done(); c.writeLoop(conn) }()
	go func() { defer c.wg.Done(); c.readLoop(conn, reader) }()

	c.cfg.Events.fireConnected()

	for _, name := range names {
		if err := c.sendSubscribe(name); err != nil {
			c.logger.Warn("resubscribe %q failed: %v", name, err)
		}
	}

	return nil
}

// handshake writes the Hello frame and reads its echo using reader, the
// same buffered reader readLoop goes on to use, so no byte the broker
// sends past the echo is ever dropped.
func (c *Client) handshake(conn net.Conn, reader *bufio.Reader) error {
	hello := nanomq.Command{Type: nanomq.CmdHello, Message: nanomq.Message{PeerID: c.peerID}}
	if err := nanomq.WriteCommand(conn, &hello); err != nil {
		return err
	}

	reply, err := nanomq.ReadCommand(reader, c.cfg.MaxFrameBytes)
	if err != nil {
		return fmt.Errorf("nanomq: handshake: %w", err)
	}
	if reply.Type != nanomq.CmdHello {
		return fmt.Errorf("nanomq: handshake: expected Hello echo, got %s", reply.Type)
	}
	return nil
}

// teardownConnection implements the cancellation semantics of §5: close
// the socket, signal every open query, and mark disconnected. It is safe
// to call when already disconnected.
func (c *Client) teardownConnection() {
	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		c.correlator.releaseAll()
		c.cfg.Events.fireDisconnected()
	}
}

func (c *Client) writeLoop(conn net.Conn) {
	for {
		select {
		case cmd := <-c.outbox:
			if err := nanomq.WriteCommand(conn, &cmd); err != nil {
				c.logger.Warn("write failed: %v", err)
				c.teardownConnection()
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Client) readLoop(conn net.Conn, reader *bufio.Reader) {
	for {
		cmd, err := nanomq.ReadCommand(reader, c.cfg.MaxFrameBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.cfg.Events.fireException(err)
			}
			c.teardownConnection()
			return
		}
		c.handleInbound(cmd)
	}
}

func (c *Client) handleInbound(cmd nanomq.Command) {
	switch cmd.Type {
	case nanomq.CmdCommandAck:
		c.acks.Ack(cmd.Message.MessageID)
	case nanomq.CmdHello:
		// Late/duplicate handshake echo; nothing to do post-handshake.
	case nanomq.CmdProcessMessage:
		c.handleProcessMessage(cmd.Message)
	default:
		c.cfg.Events.fireException(nanomq.ProtocolErrorf("unexpected command type %s from broker", cmd.Type))
	}
}

func (c *Client) handleProcessMessage(msg nanomq.Message) {
	c.ackDelivery(msg.MessageID)

	switch {
	case msg.IsReply:
		hasOpen := c.correlator.deliver(msg)
		c.cfg.Events.fireQueryReplyReceived(msg, hasOpen)
	case msg.IsQuery:
		reply := c.cfg.Events.fireQueryReceived(msg)
		if reply != nil {
			reply.InReplyToMessageID = msg.MessageID
			reply.IsReply = true
			reply.IsQuery = false
			reply.QueueName = msg.QueueName
			reply.PeerID = c.peerID
			reply.MessageID = uuid.New()
			reply.EnqueuedAt = time.Now()
			c.sendReply(*reply)
		}
	default:
		c.cfg.Events.fireMessageReceived(msg)
	}
}

// ackDelivery sends the protocol-level CommandAck for an inbound
// ProcessMessage, per the dual-ack design note in §9.
func (c *Client) ackDelivery(messageID uuid.UUID) {
	ackCmd := nanomq.Command{Type: nanomq.CmdCommandAck, Message: nanomq.Message{MessageID: messageID}}
	select {
	case c.outbox <- ackCmd:
	case <-c.stop:
	}
}

// sendReply hands a query's reply to the outbox without allocating or
// waiting on an ack slot. §4.4 requires this: the reply travels on the
// same connection the read loop is servicing, so waiting here for the
// broker's CommandAck would block that read loop from ever seeing it,
// the deadlock the dual-ack design works around by leaving replies
// unacked at the client layer.
func (c *Client) sendReply(reply nanomq.Message) {
	if reply.QueueName == "" {
		c.cfg.Events.fireException(nanomq.ProtocolErrorf("empty queueName on reply"))
		return
	}
	cmd := nanomq.Command{Type: nanomq.CmdEnqueue, Message: reply}
	select {
	case c.outbox <- cmd:
		c.cfg.Events.fireEnqueued(reply)
	case <-c.stop:
	}
}

func normalizeName(name string) string { return strings.ToLower(name) }

// sendAndWaitAck allocates an ack slot for cmd before handing it to the
// outbox, then waits up to AckTimeout for the broker's CommandAck, per
// §4.4's "allocate before writing bytes" rule.
func (c *Client) sendAndWaitAck(cmd nanomq.Command) error {
	if !c.isConnected() {
		return nanomq.ErrDisconnected
	}

	c.acks.Alloc(cmd.Message.MessageID)

	select {
	case c.outbox <- cmd:
	case <-c.stop:
		return nanomq.ErrDisconnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
	defer cancel()

	if !c.acks.Wait(ctx, cmd.Message.MessageID) {
		return &nanomq.TimeoutError{MessageID: cmd.Message.MessageID.String(), Kind: "ack"}
	}
	return nil
}

// Enqueue publishes a notification to queueName.
func (c *Client) Enqueue(queueName, label, body string, expireSeconds uint32) error {
	msg := nanomq.Message{
		MessageID:     uuid.New(),
		PeerID:        c.peerID,
		QueueName:     queueName,
		Label:         label,
		Body:          body,
		ExpireSeconds: expireSeconds,
		EnqueuedAt:    time.Now(),
	}
	return c.enqueueRaw(msg)
}

func (c *Client) enqueueRaw(msg nanomq.Message) error {
	if msg.QueueName == "" {
		return nanomq.ProtocolErrorf("empty queueName on Enqueue")
	}
	cmd := nanomq.Command{Type: nanomq.CmdEnqueue, Message: msg}
	if err := c.sendAndWaitAck(cmd); err != nil {
		return err
	}
	c.cfg.Events.fireEnqueued(msg)
	return nil
}

// Subscribe joins queueName's subscriber set and remembers it for
// reconnect replay.
func (c *Client) Subscribe(queueName string) error {
	c.mu.Lock()
	c.subscribedQueues[normalizeName(queueName)] = queueName
	c.mu.Unlock()

	if err := c.sendSubscribe(queueName); err != nil {
		return err
	}
	c.cfg.Events.fireQueueSubscribed(queueName)
	return nil
}

func (c *Client) sendSubscribe(queueName string) error {
	cmd := nanomq.Command{
		Type:    nanomq.CmdSubscribe,
		Message: nanomq.Message{MessageID: uuid.New(), PeerID: c.peerID, QueueName: queueName},
	}
	return c.sendAndWaitAck(cmd)
}

// Unsubscribe leaves queueName's subscriber set.
func (c *Client) Unsubscribe(queueName string) error {
	c.mu.Lock()
	delete(c.subscribedQueues, normalizeName(queueName))
	c.mu.Unlock()

	cmd := nanomq.Command{
		Type:    nanomq.CmdUnsubscribe,
		Message: nanomq.Message{MessageID: uuid.New(), PeerID: c.peerID, QueueName: queueName},
	}
	if err := c.sendAndWaitAck(cmd); err != nil {
		return err
	}
	c.cfg.Events.fireQueueUnsubscribed(queueName)
	return nil
}

// Clear empties queueName on the broker while preserving its subscribers.
func (c *Client) Clear(queueName string) error {
	cmd := nanomq.Command{
		Type:    nanomq.CmdClear,
		Message: nanomq.Message{MessageID: uuid.New(), PeerID: c.peerID, QueueName: queueName},
	}
	if err := c.sendAndWaitAck(cmd); err != nil {
		return err
	}
	c.cfg.Events.fireQueueCleared(queueName)
	return nil
}

// Query sends a correlated request and blocks for up to timeout for its
// reply. A zero timeout uses Config.DefaultQueryTimeout. A nil, non-error
// return means no reply arrived: the timeout elapsed, or the connection
// was torn down while waiting.
func (c *Client) Query(queueName, label, body string, expireSeconds uint32, timeout time.Duration) (*nanomq.Message, error) {
	if timeout <= 0 {
		timeout = c.cfg.DefaultQueryTimeout
	}

	messageID := uuid.New()
	msg := nanomq.Message{
		MessageID:     messageID,
		PeerID:        c.peerID,
		QueueName:     queueName,
		Label:         label,
		Body:          body,
		ExpireSeconds: expireSeconds,
		EnqueuedAt:    time.Now(),
		IsQuery:       true,
	}

	replyCh := c.correlator.register(messageID)

	cmd := nanomq.Command{Type: nanomq.CmdEnqueue, Message: msg}
	if err := c.sendAndWaitAck(cmd); err != nil {
		c.correlator.deregister(messageID)
		return nil, err
	}
	c.cfg.Events.fireEnqueued(msg)

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		c.correlator.deregister(messageID)
		return nil, nil
	}
}

// QueryNoWait is a degenerate Query with no reply wait: it sends the
// request, waits only for the broker's CommandAck, and returns without
// waiting for a reply. Any reply still surfaces later via
// Events.QueryReplyReceived.
func (c *Client) QueryNoWait(queueName, label, body string, expireSeconds uint32) error {
	msg := nanomq.Message{
		MessageID:     uuid.New(),
		PeerID:        c.peerID,
		QueueName:     queueName,
		Label:         label,
		Body:          body,
		ExpireSeconds: expireSeconds,
		EnqueuedAt:    time.Now(),
		IsQuery:       true,
	}
	return c.enqueueRaw(msg)
}
