package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/oncosaferx/edge/internal/ddi"
	"go.uber.org/zap"
)

const maxSyncBody = 10 << 20

type syncResponse struct {
	AliasesUpserted int `json:"aliases_upserted"`
	DDIUpserted     int `json:"ddi_upserted"`
}

// handleAdminSync upserts alias rows and then interaction rows. The alias
// batch commits before the interaction batch starts; an alias failure stops
// the request there.
func (s *Server) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	if !s.authorized(r) {
		s.log.Warn("admin sync rejected", zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSyncBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}

	batch, err := ddi.ParseBatch(body)
	if err != nil {
		var fe *ddi.FieldError
		switch {
		case errors.As(err, &fe):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fe.Error()})
		case errors.Is(err, ddi.ErrMalformed):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON", Details: err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload", Details: err.Error()})
		}
		return
	}

	ctx := r.Context()

	aliases := batch.Aliases
	if s.resolver != nil && len(aliases) > 0 {
		aliases = s.resolver.ResolveAliases(ctx, aliases, s.log)
	}

	aliasCount, err := s.store.UpsertAliases(ctx, aliases)
	if err != nil {
		s.log.Error("alias upsert failed", zap.Int("rows", len(aliases)), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Alias upsert failed", Details: err.Error()})
		return
	}

	ddiCount, err := s.store.UpsertInteractions(ctx, batch.DDI)
	if err != nil {
		s.log.Error("ddi upsert failed",
			zap.Int("rows", len(batch.DDI)),
			zap.Int("aliases_committed", aliasCount),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:           "DDI upsert failed",
			Details:         err.Error(),
			AliasesUpserted: &aliasCount,
		})
		return
	}

	s.log.Info("admin sync complete", zap.Int("aliases_upserted", aliasCount), zap.Int("ddi_upserted", ddiCount))
	writeJSON(w, http.StatusOK, syncResponse{AliasesUpserted: aliasCount, DDIUpserted: ddiCount})
}
