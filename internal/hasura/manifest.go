package hasura

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type RelationshipType string

const (
	ObjectRelationship RelationshipType = "object"
	ArrayRelationship  RelationshipType = "array"
)

type Table struct {
	Schema string `yaml:"schema" json:"schema"`
	Name   string `yaml:"name" json:"name"`
}

func (t Table) String() string {
	return t.Schema + "." + t.Name
}

// UnmarshalYAML accepts either "name", "schema.name" or {schema, name}.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*t = parseTable(s)
		return nil
	}
	type plain Table
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = Table(p)
	return nil
}

func parseTable(s string) Table {
	if schema, name, ok := strings.Cut(s, "."); ok {
		return Table{Schema: schema, Name: name}
	}
	return Table{Name: s}
}

// Relationship is declared on Table. Object relationships follow
// ForeignKeyColumn on Table; array relationships follow RemoteColumn on
// RemoteTable back to Table.
type Relationship struct {
	Table            Table            `yaml:"table"`
	Name             string           `yaml:"name"`
	Type             RelationshipType `yaml:"type"`
	ForeignKeyColumn string           `yaml:"foreign_key_column,omitempty"`
	RemoteTable      Table            `yaml:"remote_table,omitempty"`
	RemoteColumn     string           `yaml:"remote_column,omitempty"`
}

type Manifest struct {
	Source        string         `yaml:"source"`
	Tables        []Table        `yaml:"tables"`
	Relationships []Relationship `yaml:"relationships"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest '%s': %w", path, err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Source == "" {
		m.Source = "default"
	}
	fill := func(t *Table) {
		if t.Schema == "" && t.Name != "" {
			t.Schema = "public"
		}
	}
	for i := range m.Tables {
		fill(&m.Tables[i])
	}
	for i := range m.Relationships {
		fill(&m.Relationships[i].Table)
		fill(&m.Relationships[i].RemoteTable)
	}
}

func (m *Manifest) Validate() error {
	for i, t := range m.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
	}
	for i, r := range m.Relationships {
		if r.Table.Name == "" || r.Name == "" {
			return fmt.Errorf("relationships[%d]: table and name are required", i)
		}
		switch r.Type {
		case ObjectRelationship:
			if r.ForeignKeyColumn == "" {
				return fmt.Errorf("relationships[%d] %s: object relationship needs foreign_key_column", i, r.Name)
			}
		case ArrayRelationship:
			if r.RemoteTable.Name == "" || r.RemoteColumn == "" {
				return fmt.Errorf("relationships[%d] %s: array relationship needs remote_table and remote_column", i, r.Name)
			}
		default:
			return fmt.Errorf("relationships[%d] %s: unknown type %q", i, r.Name, r.Type)
		}
	}
	return nil
}
