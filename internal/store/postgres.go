package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oncosaferx/edge/internal/ddi"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type aliasModel struct {
	Name          string `gorm:"primaryKey"`
	CanonicalName string `gorm:"not null;index"`
	RxCUI         string `gorm:"column:rxcui;not null;default:''"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (aliasModel) TableName() string { return "drug_aliases" }

type interactionModel struct {
	ID              int64          `gorm:"primaryKey;autoIncrement"`
	InteractionHash string         `gorm:"uniqueIndex;not null"`
	DrugPrimary     string         `gorm:"not null;index:idx_drug_interactions_pair"`
	DrugInteractor  string         `gorm:"not null;index:idx_drug_interactions_pair"`
	Severity        string         `gorm:"not null"`
	Mechanism       string         `gorm:"not null;default:''"`
	Recommendation  string         `gorm:"not null;default:''"`
	EvidenceSource  string         `gorm:"not null;default:''"`
	EvidenceLevel   string         `gorm:"not null;default:''"`
	Citations       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (interactionModel) TableName() string { return "drug_interactions" }

// Postgres is the managed-database backend (Supabase or any Postgres).
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string, autoMigrate bool) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if autoMigrate {
		if err := db.AutoMigrate(&aliasModel{}, &interactionModel{}); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Postgres) UpsertAliases(ctx context.Context, aliases []ddi.Alias) (int, error) {
	rows := ddi.CollapseAliases(aliases)
	if len(rows) == 0 {
		return 0, nil
	}

	models := make([]aliasModel, len(rows))
	for i, a := range rows {
		models[i] = aliasModel{Name: a.Name, CanonicalName: a.CanonicalName, RxCUI: a.RxCUI}
	}

	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_name", "rxcui", "updated_at"}),
	}).Create(&models).Error
	if err != nil {
		return 0, fmt.Errorf("upsert aliases: %w", err)
	}
	return len(rows), nil
}

func (p *Postgres) UpsertInteractions(ctx context.Context, interactions []ddi.Interaction) (int, error) {
	rows := ddi.CollapseInteractions(interactions)
	if len(rows) == 0 {
		return 0, nil
	}

	models := make([]interactionModel, len(rows))
	for i, r := range rows {
		m, err := toInteractionModel(r)
		if err != nil {
			return 0, err
		}
		models[i] = m
	}

	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "interaction_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"drug_primary", "drug_interactor", "severity", "mechanism", "recommendation",
			"evidence_source", "evidence_level", "citations", "updated_at",
		}),
	}).Create(&models).Error
	if err != nil {
		return 0, fmt.Errorf("upsert interactions: %w", err)
	}
	return len(rows), nil
}

func (p *Postgres) GetInteraction(ctx context.Context, hash string) (*InteractionRecord, error) {
	var m interactionModel
	err := p.db.WithContext(ctx).Where("interaction_hash = ?", hash).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromInteractionModel(m)
}

func toInteractionModel(r ddi.Interaction) (interactionModel, error) {
	if r.Hash == "" {
		r = r.WithHash()
	}
	citations, err := json.Marshal(r.Citations)
	if err != nil {
		return interactionModel{}, err
	}
	if r.Citations == nil {
		citations = []byte("[]")
	}
	return interactionModel{
		InteractionHash: r.Hash,
		DrugPrimary:     r.DrugPrimary,
		DrugInteractor:  r.DrugInteractor,
		Severity:        string(r.Severity),
		Mechanism:       r.Mechanism,
		Recommendation:  r.Recommendation,
		EvidenceSource:  r.EvidenceSource,
		EvidenceLevel:   r.EvidenceLevel,
		Citations:       datatypes.JSON(citations),
	}, nil
}

func fromInteractionModel(m interactionModel) (*InteractionRecord, error) {
	r := &InteractionRecord{
		ID: m.ID,
		Interaction: ddi.Interaction{
			DrugPrimary:    m.DrugPrimary,
			DrugInteractor: m.DrugInteractor,
			Severity:       ddi.Severity(m.Severity),
			Mechanism:      m.Mechanism,
			Recommendation: m.Recommendation,
			EvidenceSource: m.EvidenceSource,
			EvidenceLevel:  m.EvidenceLevel,
			Hash:           m.InteractionHash,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Citations) > 0 {
		if err := json.Unmarshal(m.Citations, &r.Citations); err != nil {
			return nil, fmt.Errorf("decode citations for %s: %w", m.InteractionHash, err)
		}
	}
	return r, nil
}

func (p *Postgres) GetAlias(ctx context.Context, name string) (*AliasRecord, error) {
	var m aliasModel
	err := p.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &AliasRecord{
		Alias:     ddi.Alias{Name: m.Name, CanonicalName: m.CanonicalName, RxCUI: m.RxCUI},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// ListInteractions returns every stored row for the pair, in either order.
func (p *Postgres) ListInteractions(ctx context.Context, drugA, drugB string) ([]InteractionRecord, error) {
	var models []interactionModel
	err := p.db.WithContext(ctx).
		Where("(lower(drug_primary) = lower(?) AND lower(drug_interactor) = lower(?)) OR (lower(drug_primary) = lower(?) AND lower(drug_interactor) = lower(?))",
			drugA, drugB, drugB, drugA).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]InteractionRecord, 0, len(models))
	for _, m := range models {
		r, err := fromInteractionModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}
