package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pagesmith/internal/app"
	"pagesmith/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "Path to optional .env file")
	flag.Parse()

	settings, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, settings); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}
