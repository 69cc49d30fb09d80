// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/destiny/nanomq"
)

// Config holds every client tunable from SPEC_FULL.md §4.9, exported for
// callers who would rather build one directly than chain Options.
type Config struct {
	Address             string
	PeerID              uuid.UUID
	AckTimeout          time.Duration
	ReconnectInterval   time.Duration
	DefaultQueryTimeout time.Duration
	MaxFrameBytes       uint32
	Logger              *nanomq.Logger
	Events              Events
}

// DefaultConfig returns a Config populated with the protocol's default
// tunables and a freshly generated peer identity.
func DefaultConfig() *Config {
	return &Config{
		Address:             "",
		PeerID:              uuid.New(),
		AckTimeout:          nanomq.DefaultAckTimeout,
		ReconnectInterval:   nanomq.DefaultReconnectInterval,
		DefaultQueryTimeout: nanomq.DefaultQueryTimeout,
		MaxFrameBytes:       nanomq.DefaultMaxFrameBytes,
		Logger:              nanomq.DefaultLogger,
	}
}

// Option configures a Client at construction time.
type Option func(*Config)

// WithAddress sets the broker address to dial ("host:port").
func WithAddress(addr string) Option {
	return func(c *Config) { c.Address = addr }
}

// WithPeerID fixes the client's peerId instead of generating one. Useful
// for tests that assert on a known identity.
func WithPeerID(id uuid.UUID) Option {
	return func(c *Config) { c.PeerID = id }
}

// WithAckTimeout overrides ACK_TIMEOUT_MS.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) { c.AckTimeout = d }
}

// WithReconnectInterval overrides the supervisor's tick period.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Config) { c.ReconnectInterval = d }
}

// WithDefaultQueryTimeout overrides Query's default wait, used when a
// caller passes a zero timeout.
func WithDefaultQueryTimeout(d time.Duration) Option {
	return func(c *Config) { c.DefaultQueryTimeout = d }
}

// WithMaxFrameBytes overrides MAX_FRAME_BYTES.
func WithMaxFrameBytes(n uint32) Option {
	return func(c *Config) { c.MaxFrameBytes = n }
}

// WithLogger sets the client's logger. Unset falls back to
// nanomq.DefaultLogger.
func WithLogger(l *nanomq.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithEvents installs the C9 callback set.
func WithEvents(e Events) Option {
	return func(c *Config) { c.Events = e }
}
