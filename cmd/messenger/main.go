// Package main starts the terminal messenger client.
//
// The client drives the chat session engine against a running gateway:
// it connects with a bearer token, opens direct or group conversations,
// and renders the merged history/live timeline in the terminal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	messengercmd "github.com/DANG-PH/NgocRongOnline/internal/cmd/messenger"
)

func main() {
	cfg, err := messengercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MESSENGER] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := messengercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}
