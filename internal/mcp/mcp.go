package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oncosaferx/edge/internal/store"
	"go.uber.org/zap"
)

// Reader is the read side of the interaction store.
type Reader interface {
	GetAlias(ctx context.Context, name string) (*store.AliasRecord, error)
	ListInteractions(ctx context.Context, drugA, drugB string) ([]store.InteractionRecord, error)
}

// Server exposes read-only drug interaction lookups as MCP tools.
type Server struct {
	store     Reader
	log       *zap.Logger
	mcpServer *mcp.Server
}

func NewServer(st Reader, version string, log *zap.Logger) *Server {
	s := &Server{
		store: st,
		log:   log,
	}

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    "oncosaferx-interactions",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "lookup_interactions",
			Description: "Look up known interactions between two drugs. Brand names and synonyms are resolved through the alias table before matching. Returns severity, mechanism, recommendation and evidence for each stored interaction.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"drug_a": {
						"type": "string",
						"description": "First drug name (generic, brand or synonym)."
					},
					"drug_b": {
						"type": "string",
						"description": "Second drug name (generic, brand or synonym)."
					}
				},
				"required": ["drug_a", "drug_b"]
			}`),
		},
		s.handleLookupInteractions,
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "resolve_alias",
			Description: "Resolve a brand name or synonym to its canonical drug name and RxNorm concept id, if known.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {
						"type": "string",
						"description": "Drug name exactly as it appears on a label or order."
					}
				},
				"required": ["name"]
			}`),
		},
		s.handleResolveAlias,
	)
}

// Handler serves both the SSE stream (GET) and messages (POST).
// Callers are expected to wrap it with their own authentication.
func (s *Server) Handler() http.Handler {
	return mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}
