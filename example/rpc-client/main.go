// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example nanomq RPC client: issues one query and prints its reply.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:45784", "broker address")
	queue := flag.String("queue", "rpc", "queue name")
	body := flag.String("body", "ping", "query body")
	timeout := flag.Duration("timeout", 5*time.Second, "reply wait timeout")
	flag.Parse()

	c := client.New(
		client.WithAddress(*addr),
		client.WithLogger(nanomq.NewLogger(nanomq.LogLevelInfo)),
	)
	if err := c.Start(); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Stop()

	reply, err := c.Query(*queue, "", *body, 0, *timeout)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	if reply == nil {
		log.Fatalf("no reply within %s", *timeout)
	}
	log.Printf("reply: %s", reply.Body)
}
