package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/peerlink-io/peerlink/internal/logging"
)

// statusResponse is the root endpoint's JSON body.
type statusResponse struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Peers         int    `json:"peers"`
	Started       string `json:"started,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleRoot serves a small status document at "/". The mux routes every
// unmatched path here, so anything but the exact root is a 404.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Name:          "peerlink",
		Description:   "WebRTC signaling relay",
		Peers:         s.reg.Count(),
		UptimeSeconds: int64(s.Uptime().Seconds()),
	}
	if !s.startedAt.IsZero() {
		resp.Started = humanize.Time(s.startedAt)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("status write failed", logging.KeyError, err)
	}
}

// handleAPI serves the key-scoped side channel under the path prefix:
//
//	GET <prefix>/<key>/id     plain-text unused identifier
//	GET <prefix>/<key>/peers  JSON identifier list, when discovery is enabled
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, s.cfg.Server.Path+"/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	key, op := parts[0], parts[1]

	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.Key)) != 1 {
		http.Error(w, "invalid key provided", http.StatusUnauthorized)
		return
	}

	switch op {
	case "id":
		id, err := s.reg.GenerateID()
		if err != nil {
			http.Error(w, "server has reached its capacity", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte(id)); err != nil {
			s.logger.Debug("id write failed", logging.KeyError, err)
		}

	case "peers":
		if !s.cfg.Server.AllowDiscovery {
			http.Error(w, "discovery disabled", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.reg.Snapshot()); err != nil {
			s.logger.Debug("peers write failed", logging.KeyError, err)
		}

	default:
		http.NotFound(w, r)
	}
}
