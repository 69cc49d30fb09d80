// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nanomq

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUUID(b byte) uuid.UUID {
	var id uuid.UUID
	id[0] = b
	return id
}

func TestCommandMarshalUnmarshalRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond).UTC()
	cmd := Command{
		Type: CmdProcessMessage,
		Message: Message{
			MessageID:          newTestUUID(1),
			PeerID:             newTestUUID(2),
			QueueName:          "rpc",
			Label:              "ping",
			Body:               "hello",
			ExpireSeconds:      30,
			EnqueuedAt:         now,
			IsQuery:            true,
			IsReply:            false,
			InReplyToMessageID: uuid.Nil,
		},
	}

	payload, err := cmd.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalCommand(payload)
	require.NoError(t, err)

	assert.Equal(t, cmd.Type, got.Type)
	assert.Equal(t, cmd.Message.MessageID, got.Message.MessageID)
	assert.Equal(t, cmd.Message.PeerID, got.Message.PeerID)
	assert.Equal(t, cmd.Message.QueueName, got.Message.QueueName)
	assert.Equal(t, cmd.Message.Label, got.Message.Label)
	assert.Equal(t, cmd.Message.Body, got.Message.Body)
	assert.Equal(t, cmd.Message.ExpireSeconds, got.Message.ExpireSeconds)
	assert.True(t, cmd.Message.EnqueuedAt.Equal(got.Message.EnqueuedAt))
	assert.Equal(t, cmd.Message.IsQuery, got.Message.IsQuery)
	assert.Equal(t, cmd.Message.IsReply, got.Message.IsReply)
	assert.Equal(t, uuid.Nil, got.Message.InReplyToMessageID)
}

func TestCommandMarshalRejectsUnknownType(t *testing.T) {
	cmd := Command{Type: CommandType(255)}
	_, err := cmd.Marshal()
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestUnmarshalCommandRejectsUnknownType(t *testing.T) {
	payload := []byte{255}
	_, err := UnmarshalCommand(payload)
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestUnmarshalCommandRejectsTruncatedPayload(t *testing.T) {
	_, err := UnmarshalCommand([]byte{byte(CmdEnqueue)})
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestMessageExpired(t *testing.T) {
	now := time.Now()

	never := Message{ExpireSeconds: 0, EnqueuedAt: now.Add(-time.Hour)}
	assert.False(t, never.Expired(now))

	fresh := Message{ExpireSeconds: 10, EnqueuedAt: now}
	assert.False(t, fresh.Expired(now))

	stale := Message{ExpireSeconds: 1, EnqueuedAt: now.Add(-2 * time.Second)}
	assert.True(t, stale.Expired(now))
}

func TestCommandTypeString(t *testing.T) {
	assert.Equal(t, "Enqueue", CmdEnqueue.String())
	assert.Equal(t, "Unknown", CommandType(255).String())
}
