package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/audit"
	"github.com/strefethen/anthem-hub-go/internal/auth"
	"github.com/strefethen/anthem-hub-go/internal/config"
	"github.com/strefethen/anthem-hub-go/internal/db"
	"github.com/strefethen/anthem-hub-go/internal/events"
	"github.com/strefethen/anthem-hub-go/internal/inputcache"
	"github.com/strefethen/anthem-hub-go/internal/openapi"
	"github.com/strefethen/anthem-hub-go/internal/publish"
	"github.com/strefethen/anthem-hub-go/internal/receivers"
	"github.com/strefethen/anthem-hub-go/internal/system"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("HTTP: %s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// Dialer overrides the TCP dialer used for receiver connections.
	Dialer session.Dialer
	// Sinks replaces the NATS and Redis sinks built from config.
	Sinks []publish.Sink
	// DisableSinks skips the config-driven sinks (for tests).
	DisableSinks bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, devices []config.DeviceConfig, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	openapi.RegisterRoutes(router)
	auth.RegisterRoutes(router, cfg)

	auditService := audit.NewService(cfg, dbPair, nil)
	audit.RegisterRoutes(router, auditService)

	hub := events.NewHub(nil)
	events.RegisterRoutes(router, hub)

	sinks := options.Sinks
	var sinkNames []string
	if sinks == nil && !options.DisableSinks {
		sinks, sinkNames = connectSinks(cfg)
	}

	receiverService := receivers.NewService(cfg, devices, receivers.Options{
		Hub:      hub,
		Sinks:    sinks,
		Inputs:   inputcache.NewRepository(dbPair),
		EventLog: auditService,
		Dialer:   options.Dialer,
	})
	receivers.RegisterRoutes(router, receiverService)
	if err := receiverService.Start(); err != nil {
		receiverService.Stop()
		hub.Close()
		closeSinks(sinks)
		_ = dbPair.Close()
		return nil, nil, err
	}
	auditService.StartPruneJob()

	systemService := system.NewService(cfg, dbPair, nil, receiverService, auditService, sinkNames)
	system.RegisterRoutes(router, systemService)

	registerHealthRoutes(router, auditService, receiverService)

	shutdown := func(ctx context.Context) error {
		receiverService.Stop()
		hub.Close()
		closeSinks(sinks)
		auditService.StopPruneJob()
		return dbPair.Close()
	}

	return router, shutdown, nil
}

// connectSinks builds the optional sinks and returns them with their
// names. A sink that fails to connect is skipped; the hub keeps serving
// websocket clients.
func connectSinks(cfg config.Config) ([]publish.Sink, []string) {
	var sinks []publish.Sink
	var names []string
	if cfg.NATSURL != "" {
		natsSink, err := publish.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, nil)
		if err != nil {
			log.Printf("NATS: %v (sink disabled)", err)
		} else {
			sinks = append(sinks, natsSink)
			names = append(names, "nats")
		}
	}
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ttl := time.Duration(cfg.RedisShadowTTLSec) * time.Second
		redisSink, err := publish.ConnectRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix, ttl, nil)
		cancel()
		if err != nil {
			log.Printf("REDIS: %v (sink disabled)", err)
		} else {
			sinks = append(sinks, redisSink)
			names = append(names, "redis")
		}
	}
	return sinks, names
}

func closeSinks(sinks []publish.Sink) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Printf("HTTP: sink close error: %v", err)
		}
	}
}

func registerHealthRoutes(router chi.Router, auditService *audit.Service, receiverService *receivers.Service) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "anthem-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		snapshots := receiverService.List()
		connected := 0
		for _, snapshot := range snapshots {
			if snapshot.Available {
				connected++
			}
		}

		status, code := "ready", http.StatusOK
		if !auditService.IsHealthy() {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		return api.WriteJSON(w, code, map[string]any{
			"status": status,
			"receivers": map[string]any{
				"configured": len(snapshots),
				"connected":  connected,
			},
			"event_log_healthy": auditService.IsHealthy(),
		})
	}))
}
