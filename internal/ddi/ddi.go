// Package ddi holds the drug alias and drug-drug-interaction evidence rows
// accepted by the admin sync endpoint, and the dedup key that makes their
// upserts idempotent.
package ddi

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityMinor           Severity = "minor"
	SeverityModerate        Severity = "moderate"
	SeverityMajor           Severity = "major"
	SeverityContraindicated Severity = "contraindicated"
)

var ErrInvalidSeverity = errors.New("invalid severity")

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityContraindicated:
		return true
	}
	return false
}

// Alias maps a brand or colloquial drug name to its canonical name.
type Alias struct {
	Name          string `json:"name"`
	CanonicalName string `json:"canonical_name"`
	RxCUI         string `json:"rxcui,omitempty"`
}

func (a Alias) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(a.CanonicalName) == "" {
		return errors.New("canonical_name is required")
	}
	return nil
}

// Interaction is one piece of evidence about a drug pair. Hash is filled in by
// WithHash and is never taken from client input.
type Interaction struct {
	DrugPrimary    string   `json:"drug_primary"`
	DrugInteractor string   `json:"drug_interactor"`
	Severity       Severity `json:"severity"`
	Mechanism      string   `json:"mechanism,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	EvidenceSource string   `json:"evidence_source,omitempty"`
	EvidenceLevel  string   `json:"evidence_level,omitempty"`
	Citations      []string `json:"citations,omitempty"`
	Hash           string   `json:"interaction_hash,omitempty"`
}

func (i Interaction) Validate() error {
	if strings.TrimSpace(i.DrugPrimary) == "" {
		return errors.New("drug_primary is required")
	}
	if strings.TrimSpace(i.DrugInteractor) == "" {
		return errors.New("drug_interactor is required")
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("%w %q: want one of minor, moderate, major, contraindicated", ErrInvalidSeverity, i.Severity)
	}
	return nil
}

// Hash returns the hex SHA-256 of the lower-cased, pipe-joined
// (drug_primary, drug_interactor, evidence_source) triple.
func Hash(drugPrimary, drugInteractor, evidenceSource string) string {
	key := strings.ToLower(drugPrimary) + "|" + strings.ToLower(drugInteractor) + "|" + strings.ToLower(evidenceSource)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (i Interaction) WithHash() Interaction {
	i.Hash = Hash(i.DrugPrimary, i.DrugInteractor, i.EvidenceSource)
	if i.Citations == nil {
		i.Citations = []string{}
	}
	return i
}

// CollapseAliases keeps the last alias per name, preserving first-seen order.
func CollapseAliases(rows []Alias) []Alias {
	return collapse(rows, func(a Alias) string { return a.Name })
}

// CollapseInteractions hashes every row and keeps the last one per hash,
// preserving first-seen order.
func CollapseInteractions(rows []Interaction) []Interaction {
	hashed := make([]Interaction, len(rows))
	for i, r := range rows {
		hashed[i] = r.WithHash()
	}
	return collapse(hashed, func(r Interaction) string { return r.Hash })
}

func collapse[T any](rows []T, key func(T) string) []T {
	idx := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if pos, ok := idx[k]; ok {
			out[pos] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out
}
