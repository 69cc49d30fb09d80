// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nanomq

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Message is the data record carried by Enqueue and ProcessMessage
// commands. MessageID is globally unique per origin; IsQuery and IsReply
// are mutually exclusive; a reply always names the query it answers.
type Message struct {
	MessageID          uuid.UUID
	PeerID             uuid.UUID
	QueueName          string
	Label              string
	Body               string
	ExpireSeconds      uint32
	EnqueuedAt         time.Time
	IsQuery            bool
	IsReply            bool
	InReplyToMessageID uuid.UUID
}

// Expired reports whether m's expiry has elapsed as of now. A zero
// ExpireSeconds means the message never expires.
func (m *Message) Expired(now time.Time) bool {
	if m.ExpireSeconds == 0 {
		return false
	}
	return now.After(m.EnqueuedAt.Add(time.Duration(m.ExpireSeconds) * time.Second))
}

// Command is the tagged envelope every frame carries: a type plus the
// message record it pertains to. Control commands (Hello, Subscribe,
// Unsubscribe, Clear, CommandAck) populate only the identifying fields of
// Message they need; Enqueue and ProcessMessage use the full record.
type Command struct {
	Type    CommandType
	Message Message
}

// Marshal serializes c into the ordered binary layout: type, messageId,
// peerId, queueName, label, body, expireSeconds, enqueuedAt, isQuery,
// isReply, inReplyToMessageId. All multi-byte integers are little-endian,
// matching the frame header's byte order.
func (c *Command) Marshal() ([]byte, error) {
	if !knownCommandType(c.Type) {
		return nil, newProtocolError("unknown command type %d", c.Type)
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(c.Type))
	buf.Write(c.Message.MessageID[:])
	buf.Write(c.Message.PeerID[:])

	if err := writeString16(&buf, c.Message.QueueName); err != nil {
		return nil, err
	}
	if err := writeString32(&buf, c.Message.Label); err != nil {
		return nil, err
	}
	if err := writeString32(&buf, c.Message.Body); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.LittleEndian, c.Message.ExpireSeconds); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, unixMillis(c.Message.EnqueuedAt)); err != nil {
		return nil, err
	}
	buf.WriteByte(boolByte(c.Message.IsQuery))
	buf.WriteByte(boolByte(c.Message.IsReply))
	buf.Write(c.Message.InReplyToMessageID[:])

	return buf.Bytes(), nil
}

// UnmarshalCommand reconstructs a Command from a payload previously
// produced by Marshal. An unrecognized type or a truncated payload is a
// ProtocolError: the caller must close the session that received it.
func UnmarshalCommand(payload []byte) (Command, error) {
	r := bytes.NewReader(payload)
	var cmd Command

	typeByte, err := r.ReadByte()
	if err != nil {
		return cmd, newProtocolError("truncated command: missing type")
	}
	cmd.Type = CommandType(typeByte)
	if !knownCommandType(cmd.Type) {
		return cmd, newProtocolError("unknown command type %d", typeByte)
	}

	if _, err := io.ReadFull(r, cmd.Message.MessageID[:]); err != nil {
		return cmd, newProtocolError("truncated command: messageId: %v", err)
	}
	if _, err := io.ReadFull(r, cmd.Message.PeerID[:]); err != nil {
		return cmd, newProtocolError("truncated command: peerId: %v", err)
	}

	cmd.Message.QueueName, err = readString16(r)
	if err != nil {
		return cmd, newProtocolError("truncated command: queueName: %v", err)
	}
	cmd.Message.Label, err = readString32(r)
	if err != nil {
		return cmd, newProtocolError("truncated command: label: %v", err)
	}
	cmd.Message.Body, err = readString32(r)
	if err != nil {
		return cmd, newProtocolError("truncated command: body: %v", err)
	}

	if err := binary.Read(r, binary.LittleEndian, &cmd.Message.ExpireSeconds); err != nil {
		return cmd, newProtocolError("truncated command: expireSeconds: %v", err)
	}
	var enqueuedAtMs int64
	if err := binary.Read(r, binary.LittleEndian, &enqueuedAtMs); err != nil {
		return cmd, newProtocolError("truncated command: enqueuedAt: %v", err)
	}
	cmd.Message.EnqueuedAt = millisToTime(enqueuedAtMs)

	isQueryByte, err := r.ReadByte()
	if err != nil {
		return cmd, newProtocolError("truncated command: isQuery: %v", err)
	}
	cmd.Message.IsQuery = isQueryByte != 0

	isReplyByte, err := r.ReadByte()
	if err != nil {
		return cmd, newProtocolError("truncated command: isReply: %v", err)
	}
	cmd.Message.IsReply = isReplyByte != 0

	if _, err := io.ReadFull(r, cmd.Message.InReplyToMessageID[:]); err != nil {
		return cmd, newProtocolError("truncated command: inReplyToMessageId: %v", err)
	}

	return cmd, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("nanomq: string field exceeds uint16 length (%d bytes)", len(s))
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func writeString32(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	return readStringBody(r, int(n))
}

func readString32(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > DefaultMaxFrameBytes {
		return "", fmt.Errorf("nanomq: string field length %d exceeds frame cap", n)
	}
	return readStringBody(r, int(n))
}

func readStringBody(r *bytes.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
