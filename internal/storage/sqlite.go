package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/easeaico/persona-studio/internal/types"
)

// Local is the embedded sqlite gateway for single-machine deployments. It
// offers the same contract as Store, minus vector search (SearchSimilar
// returns no matches; similarity needs the PostgreSQL backend).
type Local struct {
	db *sql.DB
}

const localSchema = `
CREATE TABLE IF NOT EXISTS characters (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_characters_user ON characters(user_id);
CREATE TABLE IF NOT EXISTS chat_sessions (
	id             TEXT PRIMARY KEY,
	character_id   TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	active_node_id TEXT NOT NULL,
	nodes          TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	UNIQUE(character_id, user_id)
);
`

// NewLocal opens (creating if needed) the embedded database at path.
func NewLocal(path string) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(localSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &Local{db: db}, nil
}

func (l *Local) Close() error {
	return l.db.Close()
}

func (l *Local) GetCharacter(ctx context.Context, id string) (*types.CharacterRecord, error) {
	var payload string
	err := l.db.QueryRowContext(ctx,
		"SELECT payload FROM characters WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewEmptyDraft(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return decodeCharacter(payload)
}

func (l *Local) SaveCharacter(ctx context.Context, userID string, record *types.CharacterRecord, fingerprint string) (*types.CharacterRecord, error) {
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
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO characters (id, user_id, fingerprint, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			fingerprint = excluded.fingerprint,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		saved.ID, saved.UserID, fingerprint, string(payload),
		saved.CreatedAt.Format(time.RFC3339Nano), saved.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to save character: %w", err)
	}
	return saved, nil
}

func (l *Local) ListCharacters(ctx context.Context, userID string) ([]types.CharacterRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT payload FROM characters WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var records []types.CharacterRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan character row: %w", err)
		}
		record, err := decodeCharacter(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate characters: %w", err)
	}
	return records, nil
}

func (l *Local) DeleteCharacter(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM characters WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return nil
}

// SearchSimilar is unsupported on the embedded backend.
func (l *Local) SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]types.CharacterRecord, error) {
	return nil, nil
}

func (l *Local) GetChatSession(ctx context.Context, characterID, userID string) (*types.ChatSession, error) {
	var (
		session types.ChatSession
		nodes   string
		updated string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT id, active_node_id, nodes, updated_at
		FROM chat_sessions WHERE character_id = ? AND user_id = ?`,
		characterID, userID).Scan(&session.ID, &session.ActiveNodeID, &nodes, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	session.CharacterID = characterID
	session.UserID = userID
	if err := json.Unmarshal([]byte(nodes), &session.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode chat nodes: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		session.UpdatedAt = t
	}
	return &session, nil
}

func (l *Local) SaveChatSession(ctx context.Context, session *types.ChatSession) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	nodes, err := json.Marshal(session.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode chat nodes: %w", err)
	}
	session.UpdatedAt = time.Now().UTC()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, character_id, user_id, active_node_id, nodes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id, user_id) DO UPDATE SET
			active_node_id = excluded.active_node_id,
			nodes = excluded.nodes,
			updated_at = excluded.updated_at`,
		session.ID, session.CharacterID, session.UserID, session.ActiveNodeID,
		string(nodes), session.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save chat session: %w", err)
	}
	return nil
}

func decodeCharacter(payload string) (*types.CharacterRecord, error) {
	var record types.CharacterRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to decode character payload: %w", err)
	}
	return &record, nil
}
