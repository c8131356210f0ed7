package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse is the payload the frontend status banner reads.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	API       string          `json:"api"`
	Supabase  *SupabaseStatus `json:"supabase,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

type SupabaseStatus struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   s.opts.Version,
		API:       "admin-sync",
		Supabase:  &SupabaseStatus{Enabled: s.opts.Managed},
		Warnings:  append([]string(nil), s.opts.Warnings...),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check: database unreachable", zap.Error(err))
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "database unreachable")
	}

	writeJSON(w, http.StatusOK, resp)
}
