package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/gantryhq/gantry/pkg/cert"
	"github.com/gantryhq/gantry/pkg/challenge"
	"github.com/gantryhq/gantry/pkg/cluster"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/metrics"
	"github.com/gantryhq/gantry/pkg/types"
)

// Reloader is the slice of the reconciler the API needs
type Reloader interface {
	Reload(ctx context.Context) *types.ReloadResult
}

// Config holds the HTTP surface configuration
type Config struct {
	Port          int
	ClusterSecret string
	PeerTimeout   time.Duration
}

// Server is the admin and challenge HTTP surface. Every node runs
// one; the challenge endpoint is public, the rest sits behind the
// token verifier when one is configured.
type Server struct {
	cfg        Config
	router     *mux.Router
	httpServer *http.Server

	challenges *challenge.Service
	cluster    *cluster.Service
	certs      *cert.Engine
	monitor    *cert.Monitor
	reloader   Reloader
	peers      *PeerClient
	verifier   TokenVerifier
}

// NewServer wires the HTTP surface
func NewServer(cfg Config, challenges *challenge.Service, cl *cluster.Service, certs *cert.Engine, monitor *cert.Monitor, reloader Reloader, verifier TokenVerifier) *Server {
	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		challenges: challenges,
		cluster:    cl,
		certs:      certs,
		monitor:    monitor,
		reloader:   reloader,
		peers:      NewPeerClient(cfg.Port, cfg.PeerTimeout),
		verifier:   verifier,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Public
	s.router.HandleFunc("/.well-known/acme-challenge/{token}", s.handleChallenge).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Authenticated
	s.router.HandleFunc("/reload", s.auth(s.handleReload)).Methods(http.MethodPost)
	s.router.HandleFunc("/cluster/reload", s.auth(s.handleClusterReload)).Methods(http.MethodPost)

	s.router.HandleFunc("/cluster/nodes", s.auth(s.handleNodes)).Methods(http.MethodGet)
	s.router.HandleFunc("/cluster/stats", s.auth(s.handleStats)).Methods(http.MethodGet)
	s.router.HandleFunc("/cluster/leader", s.auth(s.handleLeader)).Methods(http.MethodGet)
	s.router.HandleFunc("/cluster/leader/status", s.auth(s.handleLeaderStatus)).Methods(http.MethodGet)

	s.router.HandleFunc("/cluster/admin/cleanup", s.auth(s.handleAdminCleanup)).Methods(http.MethodPost)
	s.router.HandleFunc("/cluster/admin/enforce-leader", s.auth(s.handleAdminEnforceLeader)).Methods(http.MethodPost)
	s.router.HandleFunc("/cluster/admin/ensure-leader", s.auth(s.handleAdminEnsureLeader)).Methods(http.MethodPost)
	s.router.HandleFunc("/cluster/admin/become-leader", s.auth(s.handleAdminBecomeLeader)).Methods(http.MethodPost)

	s.router.HandleFunc("/certificates", s.auth(s.handleListCertificates)).Methods(http.MethodGet)
	s.router.HandleFunc("/certificates/summary", s.auth(s.handleCertSummary)).Methods(http.MethodGet)
	s.router.HandleFunc("/certificates/upload", s.auth(s.handleUploadCertificate)).Methods(http.MethodPost)
	s.router.HandleFunc("/certificates/self-signed", s.auth(s.handleSelfSigned)).Methods(http.MethodPost)
	s.router.HandleFunc("/certificates/{id}", s.auth(s.handleDeleteCertificate)).Methods(http.MethodDelete)
	s.router.HandleFunc("/domains/validate", s.auth(s.handleValidateDomain)).Methods(http.MethodGet)
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving; blocks until the listener fails or Shutdown
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithComponent("api").Info().Int("port", s.cfg.Port).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// auth gates a handler on the token verifier. No verifier configured
// means requests pass, which is only acceptable in development.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := s.verifier.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}
