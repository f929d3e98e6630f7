// Package api exposes the tiered cache over HTTP for inspection and
// operational tooling: health, stats, key-level access, tier re-enable,
// and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tiercache/pkg/cache"
	"tiercache/pkg/logging"
	"tiercache/pkg/tiered"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves the cache inspection API.
type Server struct {
	cache  *tiered.Cache
	server *http.Server
	logger *logging.Logger
	config ServerConfig
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// Registry for the /metrics endpoint. Nil uses the default registerer's
	// gatherer.
	Registry *prometheus.Registry

	Logger *logging.Logger
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewServer creates an API server over the given cache.
func NewServer(c *tiered.Cache, config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logging.Global().Named("api")
	}

	s := &Server{
		cache:  c,
		logger: logger,
		config: config,
	}

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.Router(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Router builds the HTTP routes. Exposed so callers can mount the API under
// their own server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/cache/{key}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/cache/{key}", s.handleSet).Methods(http.MethodPut)
	r.HandleFunc("/cache/{key}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/cache", s.handleClear).Methods(http.MethodDelete)

	r.HandleFunc("/tiers/{tier}/enable", s.handleEnableTier).Methods(http.MethodPost)

	if s.config.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("api server listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := cache.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	value, err := s.cache.Get(r.Context(), key)
	if err != nil {
		if cache.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

type setRequest struct {
	Value      interface{} `json:"value"`
	TTLSeconds int         `json:"ttl_seconds"`
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := cache.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.cache.Set(r.Context(), key, req.Value, ttl); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "stored": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := cache.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.cache.Delete(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func (s *Server) handleEnableTier(w http.ResponseWriter, r *http.Request) {
	tier := mux.Vars(r)["tier"]

	switch tier {
	case tiered.TierRemote:
		s.cache.ReenableTier2()
	case tiered.TierDurable:
		s.cache.ReenableTier3()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "unknown tier: " + tier,
		})
		return
	}

	s.logger.Info("tier re-enabled via api", zap.String("tier", tier))
	writeJSON(w, http.StatusOK, map[string]interface{}{"tier": tier, "enabled": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
