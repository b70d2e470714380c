package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/stdr"

	"formkit/internal/gateway/app"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("LOG_VERBOSITY"))); err == nil {
		stdr.SetVerbosity(v)
	}
	logger := stdr.New(log.Default()).WithName("gateway")

	a, err := app.New(os.Args[1:], logger)
	if err != nil {
		log.Fatalf("Failed to initialize gateway: %v", err)
	}

	go func() {
		if err := a.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		log.Fatalf("Gateway forced to shutdown: %v", err)
	}

	log.Println("Gateway exiting")
}
