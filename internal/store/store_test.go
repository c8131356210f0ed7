package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oncosaferx/edge/internal/ddi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// setupTestDB creates a temporary test database
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		os.Remove(dbPath)
	})
	return s
}

func TestUpsertAliases(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	n, err := s.UpsertAliases(ctx, []ddi.Alias{
		{Name: "tylenol", CanonicalName: "acetaminophen"},
		{Name: "coumadin", CanonicalName: "warfarin", RxCUI: "11289"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-submit with a changed canonical name: updated in place.
	n, err = s.UpsertAliases(ctx, []ddi.Alias{{Name: "tylenol", CanonicalName: "paracetamol", RxCUI: "161"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := s.CountAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	a, err := s.GetAlias(ctx, "tylenol")
	require.NoError(t, err)
	assert.Equal(t, "paracetamol", a.CanonicalName)
	assert.Equal(t, "161", a.RxCUI)
	assert.False(t, a.CreatedAt.IsZero())

	_, err = s.GetAlias(ctx, "advil")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertInteractions_SameTripleIsIdempotent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first := ddi.Interaction{
		DrugPrimary: "acetaminophen", DrugInteractor: "warfarin", Severity: ddi.SeverityModerate,
		EvidenceSource: "drugbank", Mechanism: "CYP2C9 inhibition",
	}
	second := first
	second.Mechanism = "reduced vitamin K dependent clotting factor synthesis"
	second.Citations = []string{"PMID:12345"}

	_, err := s.UpsertInteractions(ctx, []ddi.Interaction{first})
	require.NoError(t, err)
	_, err = s.UpsertInteractions(ctx, []ddi.Interaction{second})
	require.NoError(t, err)

	total, err := s.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	got, err := s.GetInteraction(ctx, ddi.Hash("acetaminophen", "warfarin", "drugbank"))
	require.NoError(t, err)
	assert.Equal(t, second.Mechanism, got.Mechanism)
	assert.Equal(t, []string{"PMID:12345"}, got.Citations)
	assert.Equal(t, ddi.SeverityModerate, got.Severity)
}

func TestUpsertInteractions_DuplicateInOneBatch(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	rows := []ddi.Interaction{
		{DrugPrimary: "a", DrugInteractor: "b", Severity: ddi.SeverityMinor, EvidenceSource: "x", Mechanism: "one"},
		{DrugPrimary: "a", DrugInteractor: "b", Severity: ddi.SeverityMajor, EvidenceSource: "x", Mechanism: "two"},
	}
	n, err := s.UpsertInteractions(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetInteraction(ctx, ddi.Hash("a", "b", "x"))
	require.NoError(t, err)
	assert.Equal(t, "two", got.Mechanism)
	assert.Equal(t, ddi.SeverityMajor, got.Severity)
	assert.Equal(t, []string{}, got.Citations)
}

func TestUpsertInteractions_DifferentSourceIsDistinct(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	base := ddi.Interaction{DrugPrimary: "acetaminophen", DrugInteractor: "warfarin", Severity: ddi.SeverityModerate, EvidenceSource: "drugbank"}
	other := base
	other.EvidenceSource = "fda-label"

	n, err := s.UpsertInteractions(ctx, []ddi.Interaction{base, other})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.ListInteractions(ctx, "Warfarin", "ACETAMINOPHEN")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "drugbank", rows[0].EvidenceSource)
	assert.Equal(t, "fda-label", rows[1].EvidenceSource)
}

func TestUpsertInteractions_RejectsUnknownSeverityAtomically(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.UpsertInteractions(ctx, []ddi.Interaction{
		{DrugPrimary: "a", DrugInteractor: "b", Severity: ddi.SeverityMinor},
		{DrugPrimary: "c", DrugInteractor: "d", Severity: "catastrophic"},
	})
	require.Error(t, err)

	total, err := s.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Zero(t, total, "failed batch must roll back")
}

func TestNew_InMemory(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	n, err := s.UpsertAliases(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
