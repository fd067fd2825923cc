package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/persona-studio/internal/types"
)

// chatSessionModel maps to the chat_sessions table. One session per
// (character, user) pair; the node arena travels as JSONB.
type chatSessionModel struct {
	ID           string `gorm:"primaryKey"`
	CharacterID  string `gorm:"index:idx_chat_sessions_owner,unique"`
	UserID       string `gorm:"index:idx_chat_sessions_owner,unique"`
	ActiveNodeID string
	Nodes        json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt    time.Time
}

func (chatSessionModel) TableName() string {
	return "chat_sessions"
}

// GetChatSession returns nil, nil when the pair has no session yet.
func (s *Store) GetChatSession(ctx context.Context, characterID, userID string) (*types.ChatSession, error) {
	var model chatSessionModel
	err := s.db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", characterID, userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return chatSessionFromModel(model)
}

func (s *Store) SaveChatSession(ctx context.Context, session *types.ChatSession) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	nodes, err := json.Marshal(session.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode chat nodes: %w", err)
	}
	session.UpdatedAt = time.Now().UTC()
	model := chatSessionModel{
		ID:           session.ID,
		CharacterID:  session.CharacterID,
		UserID:       session.UserID,
		ActiveNodeID: session.ActiveNodeID,
		Nodes:        nodes,
		UpdatedAt:    session.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("failed to save chat session: %w", err)
	}
	return nil
}

func chatSessionFromModel(model chatSessionModel) (*types.ChatSession, error) {
	session := types.ChatSession{
		ID:           model.ID,
		CharacterID:  model.CharacterID,
		UserID:       model.UserID,
		ActiveNodeID: model.ActiveNodeID,
		UpdatedAt:    model.UpdatedAt,
	}
	if err := json.Unmarshal(model.Nodes, &session.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode chat nodes: %w", err)
	}
	return &session, nil
}
