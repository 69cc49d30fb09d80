// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example nanomq broker
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny/nanomq"
	"github.com/destiny/nanomq/broker"
)

func main() {
	addr := flag.String("addr", "", "listen address (default :45784)")
	flag.Parse()

	var opts []broker.Option
	if *addr != "" {
		opts = append(opts, broker.WithAddress(*addr))
	}
	opts = append(opts, broker.WithLogger(nanomq.NewLogger(nanomq.LogLevelInfo)))

	srv := broker.New(opts...)
	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start broker: %v", err)
	}
	log.Printf("nanomq broker listening on %s", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats, _ := json.Marshal(srv.Statistics())
				log.Printf("stats: %s", stats)
			case <-sigCh:
				return
			}
		}
	}()

	<-sigCh
	log.Printf("shutting down broker...")
	if err := srv.Stop(); err != nil {
		log.Printf("stop error: %v", err)
	}
}
