// cache-server runs the multi-level cache engine as a standalone
// process and exposes its operational surface over HTTP: health,
// statistics, Prometheus metrics, and invalidation.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voiceops/multicache/pkg/cache"
	"github.com/voiceops/multicache/pkg/config"
	"github.com/voiceops/multicache/pkg/l2"
	"github.com/voiceops/multicache/pkg/logging"
	"github.com/voiceops/multicache/pkg/warmer"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	engine, err := cache.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache engine")
	}
	defer engine.Close()

	// Startup probe: log reachability, but start regardless. The engine
	// degrades to loader-only while Redis is down.
	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if h := engine.Health(pctx); h.Status == l2.HealthOK {
		logger.Info().Float64("latency_ms", h.L2.LatencyMS).Msg("Connected to Redis")
	} else {
		logger.Warn().Str("status", string(h.Status)).Str("error", h.L2.Error).Msg("Redis not fully reachable at startup")
	}
	pcancel()

	warm := warmer.New(engine, cfg.WarmConcurrency, logger)
	if cfg.WarmingEnabled {
		warm.Start(context.Background())
		defer warm.Stop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(engine))
	mux.HandleFunc("/stats", statsHandler(engine, warm))
	mux.HandleFunc("/invalidate", invalidateHandler(engine, logger))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + getEnv("PORT", "8080"),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Cache server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}
}

// healthHandler reports engine health. Degraded still answers 200: the
// engine serves from L1 and the loader while the remote tier recovers.
func healthHandler(engine *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		h := engine.Health(ctx)
		status := http.StatusOK
		if h.Status == l2.HealthDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func statsHandler(engine *cache.Cache, warm *warmer.Warmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"cache":   engine.Snapshot(),
			"warming": warm.StatusAll(),
		})
	}
}

// invalidateHandler removes cached entries by namespace and glob
// pattern. POST /invalidate?namespace=business-lookup&pattern=*
func invalidateHandler(engine *cache.Cache, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		namespace := r.URL.Query().Get("namespace")
		pattern := r.URL.Query().Get("pattern")
		if namespace == "" || pattern == "" {
			http.Error(w, "namespace and pattern query parameters are required", http.StatusBadRequest)
			return
		}

		removed, err := engine.InvalidatePattern(r.Context(), namespace, pattern)
		if err != nil {
			logger.Error().Err(err).Str("namespace", namespace).Str("pattern", pattern).Msg("Invalidation failed")
			http.Error(w, "invalidation failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"namespace": namespace,
			"pattern":   pattern,
			"removed":   removed,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
