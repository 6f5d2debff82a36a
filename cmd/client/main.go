package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"drift-and-mend/client/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx, app.Options{Config: cfg}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
}
