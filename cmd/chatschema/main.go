package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalemusser/chatschema/internal/app/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := bootstrap.Run(ctx, os.Stdout)
	stop()

	if err != nil {
		log.Printf("chatschema: %v", err)
	}
	os.Exit(bootstrap.ExitCode(err))
}
