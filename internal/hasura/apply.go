package hasura

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Step is one metadata mutation the manifest still needs.
type Step struct {
	Description string
	query       query
}

type Report struct {
	Applied []string
	Skipped []string
}

type state struct {
	tracked map[string]bool
	rels    map[string]bool
}

func relKey(t Table, name string) string {
	return t.String() + "#" + name
}

func newState(meta *Metadata, source string) state {
	st := state{tracked: map[string]bool{}, rels: map[string]bool{}}
	if meta == nil {
		return st
	}
	for _, src := range meta.Sources {
		if src.Name != source {
			continue
		}
		for _, t := range src.Tables {
			if t.Table.Schema == "" {
				t.Table.Schema = "public"
			}
			st.tracked[t.Table.String()] = true
			for _, r := range t.ObjectRelationships {
				st.rels[relKey(t.Table, r.Name)] = true
			}
			for _, r := range t.ArrayRelationships {
				st.rels[relKey(t.Table, r.Name)] = true
			}
		}
	}
	return st
}

// Plan compares the manifest against exported metadata and returns the steps
// still to run, tables first, along with descriptions of satisfied entries.
func Plan(m *Manifest, meta *Metadata) (steps []Step, skipped []string) {
	st := newState(meta, m.Source)

	for _, t := range m.Tables {
		desc := "track table " + t.String()
		if st.tracked[t.String()] {
			skipped = append(skipped, desc)
			continue
		}
		st.tracked[t.String()] = true
		steps = append(steps, Step{
			Description: desc,
			query: query{Type: "pg_track_table", Args: map[string]any{
				"source": m.Source,
				"table":  t,
			}},
		})
	}

	for _, r := range m.Relationships {
		desc := fmt.Sprintf("create %s relationship %s on %s", r.Type, r.Name, r.Table)
		key := relKey(r.Table, r.Name)
		if st.rels[key] {
			skipped = append(skipped, desc)
			continue
		}
		st.rels[key] = true
		steps = append(steps, Step{Description: desc, query: relationshipQuery(m.Source, r)})
	}
	return steps, skipped
}

func relationshipQuery(source string, r Relationship) query {
	args := map[string]any{
		"source": source,
		"table":  r.Table,
		"name":   r.Name,
	}
	if r.Type == ObjectRelationship {
		args["using"] = map[string]any{"foreign_key_constraint_on": r.ForeignKeyColumn}
		return query{Type: "pg_create_object_relationship", Args: args}
	}
	args["using"] = map[string]any{"foreign_key_constraint_on": map[string]any{
		"table":  r.RemoteTable,
		"column": r.RemoteColumn,
	}}
	return query{Type: "pg_create_array_relationship", Args: args}
}

// Apply brings the Hasura instance in line with the manifest. With dryRun the
// plan is reported as applied without issuing any mutation.
func (c *Client) Apply(ctx context.Context, m *Manifest, dryRun bool) (*Report, error) {
	meta, err := c.ExportMetadata(ctx)
	if err != nil {
		return nil, err
	}

	steps, skipped := Plan(m, meta)
	report := &Report{Skipped: skipped}
	for _, s := range skipped {
		c.log.Debug("already applied", zap.String("step", s))
	}

	for _, step := range steps {
		if !dryRun {
			if err := c.call(ctx, step.query, nil); err != nil {
				return report, fmt.Errorf("%s: %w", step.Description, err)
			}
		}
		c.log.Info("applied", zap.String("step", step.Description), zap.Bool("dry_run", dryRun))
		report.Applied = append(report.Applied, step.Description)
	}
	return report, nil
}
