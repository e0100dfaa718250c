// Package main starts the order-session service and handles termination.
//
// The process serves the group ordering lifecycle over HTTP: session
// creation, participant responses, observation, and the deadline sweep.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	ordersessioncmd "github.com/louisbranch/lunchroll/internal/cmd/ordersession"
)

func main() {
	cfg, err := ordersessioncmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ORDERSESSION] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ordersessioncmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
