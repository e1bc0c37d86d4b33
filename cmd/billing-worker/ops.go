package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type opsServer struct {
	logg   *logger.Logger
	server *http.Server
}

// startOpsServer exposes liveness and metrics endpoints alongside the worker
// loop.
func startOpsServer(ctx context.Context, logg *logger.Logger, addr string, db, redis pinger) *opsServer {
	router := chi.NewRouter()
	router.Get("/healthz", healthzHandler(db, redis))
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ops := &opsServer{logg: logg, server: server}

	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()
	return ops
}

func (o *opsServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.server.Shutdown(ctx); err != nil {
		o.logg.Error(ctx, "ops server shutdown failed", err)
	}
}

func healthzHandler(db, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"db": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := db.Ping(r.Context()); err != nil {
			checks["db"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redis.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(checks)
	}
}
