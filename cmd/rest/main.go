package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entrust-concierge-be/internal/bootstrap"
	"entrust-concierge-be/internal/config"
	"entrust-concierge-be/internal/server"
	"entrust-concierge-be/internal/tracer"
)

const shutdownGrace = 15 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracing (opt-in)
	shutdownTracer := tracer.InitTracer(cfg.App)

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 4. Start Background Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := container.Start(ctx); err != nil {
		log.Fatalf("Background services failed to start: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 6. Graceful shutdown: stop accepting requests, let replies finish pacing.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	if err := srv.Shutdown(shutdownGrace); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	graceCtx, graceCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer graceCancel()
	container.Close(graceCtx)
	cancel()

	if err := shutdownTracer(graceCtx); err != nil {
		log.Printf("Tracer shutdown error: %v", err)
	}
}
