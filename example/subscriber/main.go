// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example nanomq subscriber: prints every notification on a queue.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:45784", "broker address")
	queue := flag.String("queue", "t1", "queue name")
	flag.Parse()

	c := client.New(
		client.WithAddress(*addr),
		client.WithLogger(nanomq.NewLogger(nanomq.LogLevelInfo)),
		client.WithEvents(client.Events{
			MessageReceived: func(msg nanomq.Message) {
				log.Printf("[%s] %s", msg.Label, msg.Body)
			},
			Connected: func() {
				log.Printf("connected")
			},
			Disconnected: func() {
				log.Printf("disconnected, will retry")
			},
			ExceptionOccurred: func(err error) {
				log.Printf("error: %v", err)
			},
		}),
	)
	if err := c.Start(); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Stop()

	if err := c.Subscribe(*queue); err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	log.Printf("subscribed to %q, waiting for messages (ctrl-c to exit)", *queue)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
