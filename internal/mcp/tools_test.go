package mcp

import (
	"context"
	"testing"

	"github.com/oncosaferx/edge/internal/ddi"
	"github.com/oncosaferx/edge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupServer(t *testing.T) *Server {
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	_, err = st.UpsertAliases(ctx, []ddi.Alias{
		{Name: "Coumadin", CanonicalName: "warfarin", RxCUI: "11289"},
		{Name: "Advil", CanonicalName: "ibuprofen"},
	})
	require.NoError(t, err)
	_, err = st.UpsertInteractions(ctx, []ddi.Interaction{{
		DrugPrimary:    "warfarin",
		DrugInteractor: "ibuprofen",
		Severity:       ddi.SeverityMajor,
		Mechanism:      "additive bleeding risk",
		EvidenceSource: "curated",
	}})
	require.NoError(t, err)

	return NewServer(st, "test", zaptest.NewLogger(t))
}

func TestLookupInteractionsResolvesAliases(t *testing.T) {
	s := setupServer(t)

	_, resp, err := s.handleLookupInteractions(context.Background(), nil, LookupInteractionsInput{DrugA: "Advil", DrugB: "Coumadin"})
	require.NoError(t, err)

	assert.Equal(t, "ibuprofen", resp.DrugA)
	assert.Equal(t, "warfarin", resp.DrugB)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "major", resp.Interactions[0].Severity)
	assert.Equal(t, "warfarin", resp.Interactions[0].DrugPrimary)
	assert.NotNil(t, resp.Interactions[0].Citations)
}

func TestLookupInteractionsNoMatch(t *testing.T) {
	s := setupServer(t)

	_, resp, err := s.handleLookupInteractions(context.Background(), nil, LookupInteractionsInput{DrugA: "warfarin", DrugB: "metformin"})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Interactions)
}

func TestLookupInteractionsRequiresBothDrugs(t *testing.T) {
	s := setupServer(t)

	_, _, err := s.handleLookupInteractions(context.Background(), nil, LookupInteractionsInput{DrugA: "warfarin", DrugB: "  "})
	assert.Error(t, err)
}

func TestResolveAlias(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, resp, err := s.handleResolveAlias(ctx, nil, ResolveAliasInput{Name: "Coumadin"})
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, "warfarin", resp.CanonicalName)
	assert.Equal(t, "11289", resp.RxCUI)

	_, resp, err = s.handleResolveAlias(ctx, nil, ResolveAliasInput{Name: "Unknownol"})
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.Equal(t, "Unknownol", resp.Name)

	_, _, err = s.handleResolveAlias(ctx, nil, ResolveAliasInput{})
	assert.Error(t, err)
}

func TestHandlerIsConstructed(t *testing.T) {
	s := setupServer(t)
	assert.NotNil(t, s.Handler())
}
