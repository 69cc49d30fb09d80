// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import "github.com/destiny/nanomq"

// Events is the C9 callback set. MessageReceived, QueryReceived,
// QueryReplyReceived and ExceptionOccurred fire on the client's receive
// goroutine; a handler that blocks there delays delivery of every
// subsequent frame, so handlers must not block. Connected, Disconnected
// and the operation callbacks (Enqueued, QueueSubscribed,
// QueueUnsubscribed, QueueCleared) fire on the goroutine that connected,
// tore down, or performed the operation. Any field left nil is simply
// not invoked.
type Events struct {
	// MessageReceived fires when a notification (not a query, not a
	// reply) arrives for a subscribed queue.
	MessageReceived func(msg nanomq.Message)

	// QueryReceived fires when a query arrives for a subscribed queue.
	// Its return value, if non-nil, is sent back as the reply.
	QueryReceived func(query nanomq.Message) *nanomq.Message

	// QueryReplyReceived fires for every inbound reply, whether or not a
	// local QS is still open waiting on it.
	QueryReplyReceived func(reply nanomq.Message, hasOpenQuery bool)

	Connected    func()
	Disconnected func()

	Enqueued            func(msg nanomq.Message)
	QueueSubscribed     func(name string)
	QueueUnsubscribed   func(name string)
	QueueCleared        func(name string)
	ExceptionOccurred   func(err error)
}

func (e Events) fireMessageReceived(msg nanomq.Message) {
	if e.MessageReceived != nil {
		e.MessageReceived(msg)
	}
}

func (e Events) fireQueryReceived(query nanomq.Message) *nanomq.Message {
	if e.QueryReceived == nil {
		return nil
	}
	return e.QueryReceived(query)
}

func (e Events) fireQueryReplyReceived(reply nanomq.Message, hasOpenQuery bool) {
	if e.QueryReplyReceived != nil {
		e.QueryReplyReceived(reply, hasOpenQuery)
	}
}

func (e Events) fireConnected() {
	if e.Connected != nil {
		e.Connected()
	}
}

func (e Events) fireDisconnected() {
	if e.Disconnected != nil {
		e.Disconnected()
	}
}

func (e Events) fireEnqueued(msg nanomq.Message) {
	if e.Enqueued != nil {
		e.Enqueued(msg)
	}
}

func (e Events) fireQueueSubscribed(name string) {
	if e.QueueSubscribed != nil {
		e.QueueSubscribed(name)
	}
}

func (e Events) fireQueueUnsubscribed(name string) {
	if e.QueueUnsubscribed != nil {
		e.QueueUnsubscribed(name)
	}
}

func (e Events) fireQueueCleared(name string) {
	if e.QueueCleared != nil {
		e.QueueCleared(name)
	}
}

func (e Events) fireException(err error) {
	if e.ExceptionOccurred != nil {
		e.ExceptionOccurred(err)
	}
}
