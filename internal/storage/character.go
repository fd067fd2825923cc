package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/persona-studio/internal/types"
)

// characterModel maps to the characters table. The record itself travels
// as an opaque JSONB payload; only query/filter columns are first class.
type characterModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index"`
	Version     int
	Status      string
	Name        string
	ParentBotID string
	// Fingerprint is a content hash of the originating prompt, kept for
	// dedupe/audit.
	Fingerprint string          `gorm:"index"`
	Payload     json.RawMessage `gorm:"type:jsonb"`
	// Embedding backs similarity search over originating prompts.
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

// GetCharacter returns the stored record, or an empty draft when the id is
// unknown (the caller starts fresh from it).
func (s *Store) GetCharacter(ctx context.Context, id string) (*types.CharacterRecord, error) {
	var model characterModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewEmptyDraft(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return characterFromModel(model)
}

// SaveCharacter upserts the record, assigning identity on first save.
func (s *Store) SaveCharacter(ctx context.Context, userID string, record *types.CharacterRecord, fingerprint string) (*types.CharacterRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}
	saved := record.Clone()
	if saved.ID == "" {
		saved.ID = uuid.NewString()
		saved.CreatedAt = time.Now().UTC()
	}
	saved.UserID = userID
	saved.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("failed to encode character payload: %w", err)
	}
	model := characterModel{
		ID:          saved.ID,
		UserID:      saved.UserID,
		Version:     saved.Version,
		Status:      saved.Status,
		Name:        saved.Name,
		ParentBotID: saved.ParentBotID,
		Fingerprint: fingerprint,
		Payload:     payload,
		CreatedAt:   saved.CreatedAt,
		UpdatedAt:   saved.UpdatedAt,
	}
	if len(saved.PromptEmbedding) > 0 {
		v := pgvector.NewVector(saved.PromptEmbedding)
		model.Embedding = &v
	}

	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to save character: %w", err)
	}
	return saved, nil
}

// ListCharacters returns the user's records, most recently updated first.
func (s *Store) ListCharacters(ctx context.Context, userID string) ([]types.CharacterRecord, error) {
	var rows []characterModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}

	records := make([]types.CharacterRecord, 0, len(rows))
	for _, row := range rows {
		record, err := characterFromModel(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (s *Store) DeleteCharacter(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&characterModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return nil
}

// SearchSimilar returns the user's records closest to the given prompt
// embedding, nearest first.
func (s *Store) SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]types.CharacterRecord, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	var rows []characterModel
	if err := s.db.WithContext(ctx).
		Scopes(similarScope(userID, embedding, topK)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar characters: %w", err)
	}

	records := make([]types.CharacterRecord, 0, len(rows))
	for _, row := range rows {
		record, err := characterFromModel(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// similarScope filters to the user's embedded rows and orders them by cosine
// distance. Order() drops raw expressions, so the ORDER BY goes in as a clause.
func similarScope(userID string, embedding []float32, topK int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.
			Where("user_id = ? AND embedding IS NOT NULL", userID).
			Clauses(clause.OrderBy{Expression: clause.Expr{
				SQL:  "embedding <=> ?",
				Vars: []interface{}{pgvector.NewVector(embedding)},
			}}).
			Limit(topK)
	}
}

func characterFromModel(model characterModel) (*types.CharacterRecord, error) {
	var record types.CharacterRecord
	if err := json.Unmarshal(model.Payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode character payload: %w", err)
	}
	// Columns win over the payload snapshot.
	record.ID = model.ID
	record.UserID = model.UserID
	record.Version = model.Version
	record.Status = model.Status
	record.Name = model.Name
	record.ParentBotID = model.ParentBotID
	record.CreatedAt = model.CreatedAt
	record.UpdatedAt = model.UpdatedAt
	if model.Embedding != nil {
		record.PromptEmbedding = model.Embedding.Slice()
	}
	return &record, nil
}
