// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example nanomq publisher: enqueues one notification per invocation.
package main

import (
	"flag"
	"log"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:45784", "broker address")
	queue := flag.String("queue", "t1", "queue name")
	label := flag.String("label", "", "message label")
	body := flag.String("body", "hello", "message body")
	expire := flag.Uint("expire", 0, "expireSeconds, 0 for never")
	flag.Parse()

	c := client.New(
		client.WithAddress(*addr),
		client.WithLogger(nanomq.NewLogger(nanomq.LogLevelInfo)),
	)
	if err := c.Start(); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Stop()

	if err := c.Enqueue(*queue, *label, *body, uint32(*expire)); err != nil {
		log.Fatalf("enqueue failed: %v", err)
	}
	log.Printf("enqueued %q onto %q", *body, *queue)
}
