// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker_test

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/broker"
	"github.com/destiny/nanomq/internal/testutil"
)

func startTestServer(t *testing.T, opts ...broker.Option) *broker.Server {
	t.Helper()
	addr, err := testutil.GetTestAddress()
	require.NoError(t, err)

	allOpts := append([]broker.Option{broker.WithAddress(addr), broker.WithLogger(nanomq.DevNullLogger)}, opts...)
	srv := broker.New(allOpts...)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dialAndHello(t *testing.T, addr string) (net.Conn, uuid.UUID) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	peerID := uuid.New()
	hello := nanomq.Command{Type: nanomq.CmdHello, Message: nanomq.Message{PeerID: peerID}}
	require.NoError(t, nanomq.WriteCommand(conn, &hello))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := nanomq.ReadCommand(conn, nanomq.DefaultMaxFrameBytes)
	require.NoError(t, err)
	require.Equal(t, nanomq.CmdHello, reply.Type)
	conn.SetReadDeadline(time.Time{})

	return conn, peerID
}

func TestServerStartStopNoGoroutineLeak(t *testing.T) {
	// Managed explicitly (no t.Cleanup, no double Stop) so the goleak
	// check below observes a fully torn-down server rather than racing
	// a Cleanup callback that would otherwise run after this returns.
	addr, err := testutil.GetTestAddress()
	require.NoError(t, err)

	srv := broker.New(broker.WithAddress(addr), broker.WithLogger(nanomq.DevNullLogger))
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Stop())

	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestServerAcceptsHelloHandshake(t *testing.T) {
	srv := startTestServer(t)

	conn, peerID := dialAndHello(t, srv.Addr().String())
	defer conn.Close()
	assert.NotEqual(t, uuid.Nil, peerID)
}

func TestServerRejectsNonHelloBeforeHandshake(t *testing.T) {
	srv := startTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	cmd := nanomq.Command{Type: nanomq.CmdSubscribe, Message: nanomq.Message{QueueName: "x"}}
	require.NoError(t, nanomq.WriteCommand(conn, &cmd))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = nanomq.ReadCommand(conn, 4096)
	assert.Error(t, err, "server must close the connection instead of replying")
}

func TestServerStatisticsReflectsSessions(t *testing.T) {
	srv := startTestServer(t)

	conn, _ := dialAndHello(t, srv.Addr().String())
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Statistics().ActiveSessions == 1
	}, time.Second, 10*time.Millisecond)
}
