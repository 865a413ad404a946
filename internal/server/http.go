package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"squad-reconciler/internal/constants"
	"squad-reconciler/internal/middleware"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Prober is a cheap store reachability check.
type Prober interface {
	Probe(ctx context.Context) error
}

// NewHTTPHandler wires the RPC service, /metrics and /healthz onto one mux.
func NewHTTPHandler(rs *ReconcileServer, prober Prober, metrics http.Handler, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	path, handler := rs.Handler()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			middleware.Preflight(w)
			return
		}
		requestIDMiddleware(c.Handler(handler)).ServeHTTP(w, r)
	})

	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", healthz(prober))

	return mux
}

func healthz(prober Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		start := time.Now()
		if err := prober.Probe(ctx); err != nil {
			status, code = err.Error(), http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
}
