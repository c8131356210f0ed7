package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oncosaferx/edge/internal/ddi"
	"go.uber.org/zap"
)

// Store is the write side of the managed database.
type Store interface {
	UpsertAliases(ctx context.Context, aliases []ddi.Alias) (int, error)
	UpsertInteractions(ctx context.Context, interactions []ddi.Interaction) (int, error)
	Ping(ctx context.Context) error
}

// AliasResolver fills in missing external concept ids.
type AliasResolver interface {
	ResolveAliases(ctx context.Context, aliases []ddi.Alias, log *zap.Logger) []ddi.Alias
}

type Options struct {
	AdminSecret       string
	SupabaseJWTSecret string
	// Managed is true when Store is the hosted Postgres (Supabase) backend.
	Managed  bool
	Version  string
	Warnings []string
	// Resolver is optional; nil disables alias enrichment.
	Resolver AliasResolver
	// MCP, when set, is served at /mcp behind the admin credentials.
	MCP http.Handler
}

type Server struct {
	store    Store
	opts     Options
	resolver AliasResolver
	log      *zap.Logger
}

func New(st Store, opts Options, log *zap.Logger) *Server {
	return &Server{
		store:    st,
		opts:     opts,
		resolver: opts.Resolver,
		log:      log,
	}
}

// noCacheMiddleware adds headers to prevent caching
func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Admin sync is reachable both at its function path and at the root,
	// matching how the function is addressed once deployed.
	adminSync := http.HandlerFunc(s.handleAdminSync)
	mux.Handle("/functions/admin-sync", adminSync)
	mux.Handle("/{$}", adminSync)

	if s.opts.MCP != nil {
		mux.Handle("/mcp", s.requireAuth(s.opts.MCP))
	}

	return noCacheMiddleware(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error           string `json:"error"`
	Details         string `json:"details,omitempty"`
	AliasesUpserted *int   `json:"aliases_upserted,omitempty"`
}
