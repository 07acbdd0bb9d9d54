package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gantryhq/gantry/pkg/cert"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/metrics"
	"github.com/gantryhq/gantry/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy onto HTTP statuses
func statusFor(err error) int {
	var expired *types.ExpiredError
	switch {
	case types.IsNotFound(err):
		return http.StatusNotFound
	case types.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &expired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	keyAuth, err := s.challenges.Answer(r.Context(), token)
	if err != nil {
		if types.IsNotFound(err) {
			metrics.ChallengeRequestsTotal.WithLabelValues("miss").Inc()
			http.NotFound(w, r)
			return
		}
		metrics.ChallengeRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.ChallengeRequestsTotal.WithLabelValues("hit").Inc()
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(keyAuth))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"instance_id": s.cluster.InstanceID(),
		"is_leader":   s.cluster.IsLeader(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	result := s.reloader.Reload(r.Context())
	status := http.StatusOK
	if !result.OK {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func (s *Server) handleClusterReload(w http.ResponseWriter, r *http.Request) {
	result := s.reloader.Reload(r.Context())

	if r.URL.Query().Get("broadcast") == "true" {
		go s.broadcastReload()
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// broadcastReload fans the reload out to every other node with a
// known address. Fire-and-forget: peer failures are logged only.
func (s *Server) broadcastReload() {
	logger := log.WithComponent("api")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	nodes, err := s.cluster.ActiveNodes(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list peers for broadcast")
		return
	}

	token, err := MintClusterToken(s.cfg.ClusterSecret, s.cluster.InstanceID())
	if err != nil {
		logger.Error().Err(err).Msg("failed to mint cluster token")
		return
	}

	for _, node := range nodes {
		if node.InstanceID == s.cluster.InstanceID() || node.IPAddress == "" {
			continue
		}
		go func(ip, instanceID string) {
			if err := s.peers.Reload(context.Background(), ip, token); err != nil {
				logger.Warn().Err(err).Str("peer", instanceID).Msg("peer reload failed")
				return
			}
			logger.Info().Str("peer", instanceID).Msg("peer reloaded")
		}(node.IPAddress, node.InstanceID)
	}
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.cluster.ActiveNodes(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cluster.Stats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLeader(w http.ResponseWriter, r *http.Request) {
	leader, err := s.cluster.LeaderNode(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, leader)
}

func (s *Server) handleLeaderStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instance_id": s.cluster.InstanceID(),
		"is_leader":   s.cluster.IsLeader(),
	})
}

func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.cluster.Cleanup(r.Context()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

func (s *Server) handleAdminEnforceLeader(w http.ResponseWriter, r *http.Request) {
	if err := s.cluster.EnforceSingleLeader(r.Context()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enforced"})
}

func (s *Server) handleAdminEnsureLeader(w http.ResponseWriter, r *http.Request) {
	became, err := s.cluster.EnsureLeaderExists(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_leader": became})
}

func (s *Server) handleAdminBecomeLeader(w http.ResponseWriter, r *http.Request) {
	became, err := s.cluster.TryBecomeLeader(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_leader": became})
}

func (s *Server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	details, err := s.certs.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleCertSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.monitor.Summary(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type uploadPayload struct {
	Domains  []string `json:"domains"`
	CertPEM  string   `json:"cert_pem"`
	KeyPEM   string   `json:"key_pem"`
	ChainPEM string   `json:"chain_pem,omitempty"`
}

func (s *Server) handleUploadCertificate(w http.ResponseWriter, r *http.Request) {
	var payload uploadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.certs.Upload(r.Context(), cert.UploadRequest{
		Domains:  payload.Domains,
		CertPEM:  payload.CertPEM,
		KeyPEM:   payload.KeyPEM,
		ChainPEM: payload.ChainPEM,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleSelfSigned(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Domains []string `json:"domains"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.certs.SelfSigned(r.Context(), payload.Domains)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.certs.Delete(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleValidateDomain(w http.ResponseWriter, r *http.Request) {
	d := r.URL.Query().Get("domain")
	writeJSON(w, http.StatusOK, s.certs.ValidateDomain(r.Context(), d))
}
