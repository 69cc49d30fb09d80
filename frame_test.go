// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nanomq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, nanomq")

	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf, DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf, DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFrameCRCMismatchIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("payload")))

	raw := buf.Bytes()
	// Flip a byte inside the payload without updating the carried CRC.
	raw[len(raw)-1] ^= 0xFF

	_, err := ReadFrame(bytes.NewReader(raw), DefaultMaxFrameBytes)
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestReadFrameOversizeIsProtocolError(t *testing.T) {
	header := make([]byte, frameHeaderBytes)
	binary.LittleEndian.PutUint32(header[0:4], 1024)
	binary.LittleEndian.PutUint32(header[4:8], 0)

	_, err := ReadFrame(bytes.NewReader(header), 16)
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestReadFrameTruncatedHeaderIsIOError(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultMaxFrameBytes)
	require.Error(t, err)
	var pe *ProtocolError
	assert.False(t, errors.As(err, &pe), "a truncated header is an io error, not a protocol error")
}

func TestWriteReadCommandRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cmd := &Command{
		Type: CmdEnqueue,
		Message: Message{
			MessageID: newTestUUID(1),
			PeerID:    newTestUUID(2),
			QueueName: "orders",
			Label:     "new-order",
			Body:      "payload body",
		},
	}

	require.NoError(t, WriteCommand(&buf, cmd))

	got, err := ReadCommand(&buf, DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, cmd.Type, got.Type)
	assert.Equal(t, cmd.Message.QueueName, got.Message.QueueName)
	assert.Equal(t, cmd.Message.Body, got.Message.Body)
}
