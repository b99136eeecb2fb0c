// Package httpapi is the control-plane HTTP surface (spec.md §4.7/§6.1),
// grounded on luxfi-indexer's evm/api/server.go: a gorilla/mux router
// behind a Server struct, per-route handler methods, writeJSON/writeError
// response helpers, and a thin middleware chain — generalized here to the
// protocol-bearing pattern/rollback endpoints plus the read-only
// checkpoints/matches/datums/scripts/metadata/patterns surface.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/health"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/registry"
	"github.com/cardano-chain-indexer/indexer/store"
)

// Rollbacker is the forced-rollback capability the PUT /patterns
// endpoint drives (spec.md §4.4), satisfied by chainsync.Client.
type Rollbacker interface {
	ForceRollback(target chainpoint.Point) error
}

// MetadataFetcher fetches an already-synced block's transactions by
// point, backing GET /metadata. Only chainsync/gouroboros.Backend
// implements this — Ogmios's JSON-WSP surface has no arbitrary-point
// fetch, so a server built over it passes a nil MetadataFetcher and
// /metadata answers 503 service_unavailable.
type MetadataFetcher interface {
	GetBlockTransactions(point chainpoint.Point) ([]*model.Tx, error)
}

// Config bundles the knobs the PUT /patterns rollback-safety check needs
// alongside the shared state every handler reads.
type Config struct {
	// LongestRollback is the configured stability window, in slots: the
	// "longest_rollback" spec.md §4.7 compares a forced-rollback target's
	// distance-from-tip against.
	LongestRollback uint64
	Addr            string
}

// Server is the HTTP control plane: one gorilla/mux router over the
// shared Store, pattern Registry and Health cell, plus the two
// capabilities (Rollbacker, MetadataFetcher) that reach into the
// chain-sync client.
type Server struct {
	config   Config
	db       store.Store
	registry *registry.Registry
	health   *health.Cell
	rollback Rollbacker
	fetcher  MetadataFetcher // nil under the Ogmios backend
	logger   hclog.Logger

	router *mux.Router
	srv    *http.Server
}

func New(
	config Config,
	db store.Store,
	reg *registry.Registry,
	h *health.Cell,
	rollback Rollbacker,
	fetcher MetadataFetcher,
	logger hclog.Logger,
) *Server {
	s := &Server{
		config:   config,
		db:       db,
		registry: reg,
		health:   h,
		rollback: rollback,
		fetcher:  fetcher,
		logger:   logger,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()

	return s
}

// Router exposes the router for tests, mirroring luxfi-indexer's own
// Router() accessor.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/checkpoints", s.handleListCheckpoints).Methods(http.MethodGet)
	s.router.HandleFunc("/checkpoints/{slot}", s.handleGetCheckpoint).Methods(http.MethodGet)

	s.router.HandleFunc("/matches", s.handleListMatches).Methods(http.MethodGet)
	s.router.HandleFunc("/matches/{pattern:.*}", s.handleListMatches).Methods(http.MethodGet)
	s.router.HandleFunc("/matches/{pattern:.*}", s.handleDeleteMatches).Methods(http.MethodDelete)

	s.router.HandleFunc("/datums/{hash}", s.handleGetDatum).Methods(http.MethodGet)
	s.router.HandleFunc("/scripts/{hash}", s.handleGetScript).Methods(http.MethodGet)

	s.router.HandleFunc("/metadata/{slot}", s.handleGetMetadata).Methods(http.MethodGet)

	s.router.HandleFunc("/patterns", s.handleListPatterns).Methods(http.MethodGet)
	s.router.HandleFunc("/patterns/{pattern:.*}", s.handleListPatterns).Methods(http.MethodGet)
	s.router.HandleFunc("/patterns", s.handlePutPatterns).Methods(http.MethodPut)
	s.router.HandleFunc("/patterns/{pattern:.*}", s.handlePutPatterns).Methods(http.MethodPut)
	s.router.HandleFunc("/patterns/{pattern:.*}", s.handleDeletePattern).Methods(http.MethodDelete)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, hintNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, hintMethodNotAllowed)
	})
}

// Handler returns the full middleware chain: access logging, panic
// recovery and version-prefix stripping wrap the router, the way
// luxfi-indexer's corsMiddleware wraps its own router in Run.
func (s *Server) Handler() http.Handler {
	return s.accessLogMiddleware(s.recoverMiddleware(stripVersionPrefix(s.router)))
}

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter has no getter for it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLogMiddleware tags every request with a uuid and logs method,
// path, status and duration once it completes, named the same way every
// other long-running component gets its own sub-logger.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	logger := s.logger.Named("access")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		logger.Info("request",
			"id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// recoverMiddleware turns a handler panic into spec.md §7's Unexpected
// (500) case rather than taking the process down. No library in the
// dependency pack wraps this; it is plain net/http's own recover idiom.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("unhandled panic in request handler", "err", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, hintServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// stripVersionPrefix makes every route available under both /<r> and
// /v1/<r> (spec.md §6.1).
func stripVersionPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rest := strings.TrimPrefix(r.URL.Path, "/v1"); rest != r.URL.Path && (rest == "" || strings.HasPrefix(rest, "/")) {
			r.URL.Path = rest
		}

		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until it is shut down.
func (s *Server) Run() error {
	s.srv = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("http server starting", "addr", s.config.Addr)

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

// Shutdown gracefully tears the server down, giving in-flight requests
// (including a blocking forceRollback wait) up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}
