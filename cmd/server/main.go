package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evalrag/internal/bootstrap"
	httptransport "evalrag/internal/transport/http"
)

func main() {
	app, err := bootstrap.New(context.Background())
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           httptransport.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("server starting on %s (vector store: %s)", server.Addr, app.Config.VectorStore.Driver)
		serveErr <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown failed: %v", err)
		}
		cancel()
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("server failed: %v", err)
		}
	}

	// The ingest worker and backend connections close only after the
	// listener has stopped accepting requests.
	if err := app.Close(); err != nil {
		log.Printf("close resources failed: %v", err)
	}
}
