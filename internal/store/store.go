package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oncosaferx/edge/internal/ddi"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var ErrNotFound = errors.New("not found")

// AliasRecord is a stored alias row.
type AliasRecord struct {
	ddi.Alias
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InteractionRecord is a stored interaction evidence row.
type InteractionRecord struct {
	ID int64 `json:"id"`
	ddi.Interaction
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the embedded SQLite backend.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// -- Aliases --

// UpsertAliases writes the batch in one transaction, keyed on name. Rows
// repeating a name collapse to the last occurrence. It returns the number of
// distinct rows written.
func (s *Store) UpsertAliases(ctx context.Context, aliases []ddi.Alias) (int, error) {
	rows := ddi.CollapseAliases(aliases)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO drug_aliases (name, canonical_name, rxcui, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			rxcui = excluded.rxcui,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, a := range rows {
		if _, err := stmt.ExecContext(ctx, a.Name, a.CanonicalName, a.RxCUI); err != nil {
			return 0, fmt.Errorf("upsert alias %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) GetAlias(ctx context.Context, name string) (*AliasRecord, error) {
	var a AliasRecord
	err := s.db.QueryRowContext(ctx,
		"SELECT name, canonical_name, rxcui, created_at, updated_at FROM drug_aliases WHERE name = ?", name).
		Scan(&a.Name, &a.CanonicalName, &a.RxCUI, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CountAliases(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM drug_aliases").Scan(&n)
	return n, err
}

// -- Interactions --

// UpsertInteractions attaches the dedup hash to every row and writes the batch
// in one transaction keyed on it. Rows sharing a hash collapse to the last
// occurrence. It returns the number of distinct rows written.
func (s *Store) UpsertInteractions(ctx context.Context, interactions []ddi.Interaction) (int, error) {
	rows := ddi.CollapseInteractions(interactions)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO drug_interactions (
			interaction_hash, drug_primary, drug_interactor, severity, mechanism,
			recommendation, evidence_source, evidence_level, citations, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(interaction_hash) DO UPDATE SET
			drug_primary = excluded.drug_primary,
			drug_interactor = excluded.drug_interactor,
			severity = excluded.severity,
			mechanism = excluded.mechanism,
			recommendation = excluded.recommendation,
			evidence_source = excluded.evidence_source,
			evidence_level = excluded.evidence_level,
			citations = excluded.citations,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		citations, err := json.Marshal(r.Citations)
		if err != nil {
			return 0, err
		}
		_, err = stmt.ExecContext(ctx, r.Hash, r.DrugPrimary, r.DrugInteractor, string(r.Severity), r.Mechanism,
			r.Recommendation, r.EvidenceSource, r.EvidenceLevel, string(citations))
		if err != nil {
			return 0, fmt.Errorf("upsert interaction %s/%s: %w", r.DrugPrimary, r.DrugInteractor, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

const interactionColumns = `id, interaction_hash, drug_primary, drug_interactor, severity, mechanism,
	recommendation, evidence_source, evidence_level, citations, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row scanner) (*InteractionRecord, error) {
	var r InteractionRecord
	var severity, citations string
	if err := row.Scan(&r.ID, &r.Hash, &r.DrugPrimary, &r.DrugInteractor, &severity, &r.Mechanism,
		&r.Recommendation, &r.EvidenceSource, &r.EvidenceLevel, &citations, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Severity = ddi.Severity(severity)
	if err := json.Unmarshal([]byte(citations), &r.Citations); err != nil {
		return nil, fmt.Errorf("decode citations for %s: %w", r.Hash, err)
	}
	return &r, nil
}

func (s *Store) GetInteraction(ctx context.Context, hash string) (*InteractionRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+interactionColumns+" FROM drug_interactions WHERE interaction_hash = ?", hash)
	r, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListInteractions returns every stored row for the pair, in either order.
func (s *Store) ListInteractions(ctx context.Context, drugA, drugB string) ([]InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+interactionColumns+` FROM drug_interactions
		WHERE (lower(drug_primary) = lower(?) AND lower(drug_interactor) = lower(?))
		   OR (lower(drug_primary) = lower(?) AND lower(drug_interactor) = lower(?))
		ORDER BY id`, drugA, drugB, drugB, drugA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InteractionRecord
	for rows.Next() {
		r, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) CountInteractions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM drug_interactions").Scan(&n)
	return n, err
}
