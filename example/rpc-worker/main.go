// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example nanomq RPC worker: answers every query on a queue with an echo.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:45784", "broker address")
	queue := flag.String("queue", "rpc", "queue name")
	flag.Parse()

	c := client.New(
		client.WithAddress(*addr),
		client.WithLogger(nanomq.NewLogger(nanomq.LogLevelInfo)),
		client.WithEvents(client.Events{
			QueryReceived: func(query nanomq.Message) *nanomq.Message {
				log.Printf("query: %s", query.Body)
				return &nanomq.Message{
					Body: fmt.Sprintf("echo(%s) @ %s", query.Body, time.Now().Format(time.RFC3339)),
				}
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
	log.Printf("answering queries on %q (ctrl-c to exit)", *queue)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
