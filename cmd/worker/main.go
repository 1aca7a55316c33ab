package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"clipfeed/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start workers (ingest scanner, delivery worker, persist consumer).
// SIGINT/SIGTERM trigger a cooperative drain: leasing stops, in-flight
// items settle, then the process exits.
func main() {
	log.Println("clipfeed worker starting")
	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("clipfeed worker stopped with error: %v", err)
	}
}
