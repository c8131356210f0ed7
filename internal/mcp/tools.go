package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oncosaferx/edge/internal/store"
	"go.uber.org/zap"
)

type LookupInteractionsInput struct {
	DrugA string `json:"drug_a"`
	DrugB string `json:"drug_b"`
}

// InteractionResult is one stored interaction in a tool response.
type InteractionResult struct {
	DrugPrimary    string   `json:"drug_primary"`
	DrugInteractor string   `json:"drug_interactor"`
	Severity       string   `json:"severity"`
	Mechanism      string   `json:"mechanism,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	EvidenceSource string   `json:"evidence_source,omitempty"`
	EvidenceLevel  string   `json:"evidence_level,omitempty"`
	Citations      []string `json:"citations"`
	UpdatedAt      string   `json:"updated_at"`
}

type LookupInteractionsResponse struct {
	DrugA        string              `json:"drug_a"`
	DrugB        string              `json:"drug_b"`
	Interactions []InteractionResult `json:"interactions"`
	Count        int                 `json:"count"`
}

func (s *Server) handleLookupInteractions(ctx context.Context, req *mcp.CallToolRequest, input LookupInteractionsInput) (*mcp.CallToolResult, LookupInteractionsResponse, error) {
	a := strings.TrimSpace(input.DrugA)
	b := strings.TrimSpace(input.DrugB)
	if a == "" || b == "" {
		return nil, LookupInteractionsResponse{}, fmt.Errorf("drug_a and drug_b are required")
	}

	a, err := s.canonical(ctx, a)
	if err != nil {
		return nil, LookupInteractionsResponse{}, err
	}
	b, err = s.canonical(ctx, b)
	if err != nil {
		return nil, LookupInteractionsResponse{}, err
	}

	records, err := s.store.ListInteractions(ctx, a, b)
	if err != nil {
		s.log.Error("interaction lookup failed", zap.String("drug_a", a), zap.String("drug_b", b), zap.Error(err))
		return nil, LookupInteractionsResponse{}, err
	}
	s.log.Debug("interaction lookup", zap.String("drug_a", a), zap.String("drug_b", b), zap.Int("count", len(records)))

	results := make([]InteractionResult, 0, len(records))
	for _, r := range records {
		citations := r.Citations
		if citations == nil {
			citations = []string{}
		}
		results = append(results, InteractionResult{
			DrugPrimary:    r.DrugPrimary,
			DrugInteractor: r.DrugInteractor,
			Severity:       string(r.Severity),
			Mechanism:      r.Mechanism,
			Recommendation: r.Recommendation,
			EvidenceSource: r.EvidenceSource,
			EvidenceLevel:  r.EvidenceLevel,
			Citations:      citations,
			UpdatedAt:      r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	return nil, LookupInteractionsResponse{
		DrugA:        a,
		DrugB:        b,
		Interactions: results,
		Count:        len(results),
	}, nil
}

// canonical maps an alias to its canonical name; unknown names pass through.
func (s *Server) canonical(ctx context.Context, name string) (string, error) {
	rec, err := s.store.GetAlias(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return name, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve alias %q: %w", name, err)
	}
	return rec.CanonicalName, nil
}

type ResolveAliasInput struct {
	Name string `json:"name"`
}

type ResolveAliasResponse struct {
	Name          string `json:"name"`
	Found         bool   `json:"found"`
	CanonicalName string `json:"canonical_name,omitempty"`
	RxCUI         string `json:"rxcui,omitempty"`
}

func (s *Server) handleResolveAlias(ctx context.Context, req *mcp.CallToolRequest, input ResolveAliasInput) (*mcp.CallToolResult, ResolveAliasResponse, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ResolveAliasResponse{}, fmt.Errorf("name is required")
	}

	rec, err := s.store.GetAlias(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ResolveAliasResponse{Name: name}, nil
	}
	if err != nil {
		s.log.Error("alias lookup failed", zap.String("name", name), zap.Error(err))
		return nil, ResolveAliasResponse{}, err
	}

	return nil, ResolveAliasResponse{
		Name:          name,
		Found:         true,
		CanonicalName: rec.CanonicalName,
		RxCUI:         rec.RxCUI,
	}, nil
}
