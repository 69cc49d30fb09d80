// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testutil provides testing utilities for nanomq's broker and
// client packages: ephemeral port allocation and connection polling so
// tests never hardcode a port.
package testutil

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

var portCounter int64 = 20000

// GetAvailablePort returns an available TCP port for testing.
func GetAvailablePort() (int, error) {
	basePort := atomic.AddInt64(&portCounter, 1)

	for i := 0; i < 100; i++ {
		port := int(basePort) + i
		if port > 65535 {
			port = 20000 + (port % 45535)
		}

		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports found in range")
}

func isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// GetTestAddress returns a loopback "host:port" address on an available port.
func GetTestAddress() (string, error) {
	port, err := GetAvailablePort()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("127.0.0.1:%d", port), nil
}

// WaitForConnection polls until a TCP dial to addr succeeds or timeout elapses.
func WaitForConnection(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("connection timeout for address %s", addr)
}

// PortRange represents a range of ports for testing.
type PortRange struct {
	Start int
	End   int
}

// GetPortsInRange returns available ports within a range.
func GetPortsInRange(portRange PortRange, count int) ([]int, error) {
	var ports []int

	for port := portRange.Start; port <= portRange.End && len(ports) < count; port++ {
		if isPortAvailable(port) {
			ports = append(ports, port)
		}
	}

	if len(ports) < count {
		return nil, fmt.Errorf("only found %d available ports, needed %d", len(ports), count)
	}

	return ports, nil
}
