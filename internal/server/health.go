package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/version"
)

// probeTimeout bounds each readiness probe.
const probeTimeout = 5 * time.Second

// readyCheck is the result of a single dependency probe.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks,omitempty"`
}

// handleHealth is a liveness probe: it answers 200 whenever the process can
// serve HTTP, without touching any dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleReady probes each configured dependency and reports 503 when any
// probe fails, so load balancers hold traffic until the engine is usable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Ready: true}
	for _, p := range s.pingers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(ctx)
		cancel()
		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			logging.FromContext(r.Context()).Warn("readiness probe failed",
				"dependency", p.Name(), "error", err)
		}
		resp.Checks = append(resp.Checks, check)
	}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
