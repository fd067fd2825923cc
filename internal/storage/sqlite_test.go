package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/easeaico/persona-studio/internal/types"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	local, err := NewLocal(filepath.Join(t.TempDir(), "studio.db"))
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	t.Cleanup(func() { local.Close() })
	return local
}

func TestLocalCharacterRoundTrip(t *testing.T) {
	local := newTestLocal(t)
	ctx := context.Background()

	record := types.NewEmptyDraft()
	record.Name = "Maren"
	record.OriginalPrompt = "lighthouse keeper"
	record.Fields = []types.CharacterField{
		{ID: "f1", Label: "Personality", Value: "stoic", Locked: true},
	}

	saved, err := local.SaveCharacter(ctx, "user-1", record, "fp")
	if err != nil {
		t.Fatalf("SaveCharacter returned error: %v", err)
	}
	if saved.ID == "" || saved.UserID != "user-1" {
		t.Fatalf("identity must be assigned on first save: %+v", saved)
	}

	loaded, err := local.GetCharacter(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetCharacter returned error: %v", err)
	}
	if loaded.Name != "Maren" || len(loaded.Fields) != 1 || !loaded.Fields[0].Locked {
		t.Fatalf("round trip lost data: %+v", loaded)
	}
}

func TestLocalGetCharacterMissReturnsEmptyDraft(t *testing.T) {
	local := newTestLocal(t)

	record, err := local.GetCharacter(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetCharacter returned error: %v", err)
	}
	if record.ID != "" || record.Status != types.StatusDraft || record.Version != 1 {
		t.Fatalf("miss must yield an empty draft, got %+v", record)
	}
}

func TestLocalUpsertKeepsOneRow(t *testing.T) {
	local := newTestLocal(t)
	ctx := context.Background()

	record := types.NewEmptyDraft()
	record.Name = "Maren"
	saved, err := local.SaveCharacter(ctx, "user-1", record, "fp")
	if err != nil {
		t.Fatalf("SaveCharacter returned error: %v", err)
	}

	saved.Name = "Maren Revised"
	if _, err := local.SaveCharacter(ctx, "user-1", saved, "fp2"); err != nil {
		t.Fatalf("resave returned error: %v", err)
	}

	records, err := local.ListCharacters(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListCharacters returned error: %v", err)
	}
	if len(records) != 1 || records[0].Name != "Maren Revised" {
		t.Fatalf("expected one updated row, got %+v", records)
	}
}

func TestLocalDeleteCharacter(t *testing.T) {
	local := newTestLocal(t)
	ctx := context.Background()

	record := types.NewEmptyDraft()
	record.Name = "Maren"
	saved, err := local.SaveCharacter(ctx, "user-1", record, "fp")
	if err != nil {
		t.Fatalf("SaveCharacter returned error: %v", err)
	}
	if err := local.DeleteCharacter(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteCharacter returned error: %v", err)
	}
	records, err := local.ListCharacters(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListCharacters returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(records))
	}
}

func TestLocalChatSessionRoundTrip(t *testing.T) {
	local := newTestLocal(t)
	ctx := context.Background()

	loaded, err := local.GetChatSession(ctx, "char-1", "user-1")
	if err != nil {
		t.Fatalf("GetChatSession returned error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("missing session must be nil, got %+v", loaded)
	}

	session := &types.ChatSession{
		ID:          "sess-1",
		CharacterID: "char-1",
		UserID:      "user-1",
		Nodes: []types.ChatNode{
			{ID: "n1", Role: types.RoleModel, Text: "hello"},
			{ID: "n2", ParentID: "n1", Role: types.RoleUser, Text: "hi"},
		},
		ActiveNodeID: "n2",
	}
	if err := local.SaveChatSession(ctx, session); err != nil {
		t.Fatalf("SaveChatSession returned error: %v", err)
	}

	// Upsert on the same (character, user) pair replaces, never duplicates.
	session.ActiveNodeID = "n1"
	if err := local.SaveChatSession(ctx, session); err != nil {
		t.Fatalf("resave returned error: %v", err)
	}

	loaded, err = local.GetChatSession(ctx, "char-1", "user-1")
	if err != nil {
		t.Fatalf("GetChatSession returned error: %v", err)
	}
	if loaded == nil || loaded.ActiveNodeID != "n1" || len(loaded.Nodes) != 2 {
		t.Fatalf("unexpected loaded session: %+v", loaded)
	}
	if loaded.Nodes[1].ParentID != "n1" {
		t.Fatalf("parent links must survive: %+v", loaded.Nodes)
	}
}
