// Package web serves the JSON API used by the chat client: context status and
// refresh, chat and transcript summaries, tracker lookups, artifact creation
// and the reference library.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// NewHandler builds the API routes wrapped with security headers.
func NewHandler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	h := &Handlers{Deps: d, now: time.Now}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/context-status", h.HandleContextStatus)
	mux.HandleFunc("POST /api/bootstrap", h.HandleBootstrap)
	mux.HandleFunc("POST /api/chat", h.HandleChat)
	mux.HandleFunc("POST /api/summarize-transcript", h.HandleSummarize)
	mux.HandleFunc("POST /api/scan", h.HandleScan)
	mux.HandleFunc("GET /api/repo/{owner}/{repo}", h.HandleRepo)
	mux.HandleFunc("GET /api/objective/{id}", h.HandleObjective)
	mux.HandleFunc("GET /api/epic/{id}", h.HandleEpic)
	mux.HandleFunc("POST /api/create/{kind}", h.HandleCreate)
	mux.HandleFunc("GET /api/reference-library", h.HandleReferenceList)
	mux.HandleFunc("POST /api/reference-library/add", h.HandleReferenceAdd)
	mux.HandleFunc("POST /api/reference-library/remove", h.HandleReferenceRemove)

	return securityHeaders(mux)
}

// NewServer creates the HTTP server for the API.
func NewServer(d Deps, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("Roots API running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
