// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nanomq

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

const frameHeaderBytes = 8 // 4-byte length + 4-byte CRC32

// WriteFrame writes one length-delimited, CRC-protected frame: a 4-byte
// little-endian length, a 4-byte little-endian CRC32 (IEEE) of the
// payload, then the payload itself.
func WriteFrame(w io.Writer, payload []byte) error {
	header := make([]byte, frameHeaderBytes)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame from r, validating its length against
// maxFrameBytes and its payload against the carried CRC32. A CRC mismatch
// or oversize frame is a *ProtocolError: per §4.1 the stream is considered
// desynchronized and the caller must close the session.
func ReadFrame(r io.Reader, maxFrameBytes uint32) ([]byte, error) {
	header := make([]byte, frameHeaderBytes)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	if length > maxFrameBytes {
		return nil, newProtocolError("frame length %d exceeds MAX_FRAME_BYTES %d", length, maxFrameBytes)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	if gotCRC := crc32.ChecksumIEEE(payload); gotCRC != wantCRC {
		return nil, newProtocolError("crc mismatch: want %08x got %08x", wantCRC, gotCRC)
	}

	return payload, nil
}

// WriteCommand marshals cmd and writes it to w as one frame.
func WriteCommand(w io.Writer, cmd *Command) error {
	payload, err := cmd.Marshal()
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadCommand reads one frame from r and unmarshals it into a Command.
func ReadCommand(r io.Reader, maxFrameBytes uint32) (Command, error) {
	payload, err := ReadFrame(r, maxFrameBytes)
	if err != nil {
		return Command{}, err
	}
	return UnmarshalCommand(payload)
}
