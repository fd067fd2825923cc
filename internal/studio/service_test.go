package studio

import (
	"context"
	"errors"
	"testing"

	"github.com/easeaico/persona-studio/internal/types"
)

type mockGateway struct {
	characters       map[string]*types.CharacterRecord
	savedFingerprint string
}

func newMockGateway() *mockGateway {
	return &mockGateway{characters: make(map[string]*types.CharacterRecord)}
}

func (m *mockGateway) GetCharacter(_ context.Context, id string) (*types.CharacterRecord, error) {
	if record, ok := m.characters[id]; ok {
		return record.Clone(), nil
	}
	return types.NewEmptyDraft(), nil
}

func (m *mockGateway) SaveCharacter(_ context.Context, userID string, record *types.CharacterRecord, fingerprint string) (*types.CharacterRecord, error) {
	saved := record.Clone()
	if saved.ID == "" {
		saved.ID = "generated-id"
	}
	saved.UserID = userID
	m.characters[saved.ID] = saved
	m.savedFingerprint = fingerprint
	return saved.Clone(), nil
}

func (m *mockGateway) ListCharacters(_ context.Context, _ string) ([]types.CharacterRecord, error) {
	var out []types.CharacterRecord
	for _, record := range m.characters {
		out = append(out, *record)
	}
	return out, nil
}

func (m *mockGateway) DeleteCharacter(_ context.Context, id string) error {
	delete(m.characters, id)
	return nil
}

func (m *mockGateway) GetChatSession(_ context.Context, _, _ string) (*types.ChatSession, error) {
	return nil, nil
}

func (m *mockGateway) SaveChatSession(_ context.Context, _ *types.ChatSession) error {
	return nil
}

func (m *mockGateway) SearchSimilar(_ context.Context, _ string, _ []float32, _ int) ([]types.CharacterRecord, error) {
	return nil, nil
}

func newTestService(gateway Gateway) *Service {
	return New(gateway, nil, nil, nil, nil, nil)
}

func TestSaveRequiresName(t *testing.T) {
	svc := newTestService(newMockGateway())
	record := types.NewEmptyDraft()
	record.Name = "   "

	if _, err := svc.Save(context.Background(), "user-1", record, types.StatusDraft); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestSaveNewDraftKeepsVersion(t *testing.T) {
	gateway := newMockGateway()
	svc := newTestService(gateway)
	record := types.NewEmptyDraft()
	record.Name = "Maren"
	record.OriginalPrompt = "lighthouse keeper"

	saved, err := svc.Save(context.Background(), "user-1", record, types.StatusDraft)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.Version != 1 || saved.Status != types.StatusDraft {
		t.Fatalf("unexpected version/status: %d %s", saved.Version, saved.Status)
	}
	if saved.ParentBotID != "" {
		t.Fatalf("fresh draft must not get a parent link")
	}
	if gateway.savedFingerprint != Fingerprint("lighthouse keeper") {
		t.Fatalf("unexpected fingerprint: %s", gateway.savedFingerprint)
	}
}

func TestSaveFinalizedBackToDraftBumpsVersion(t *testing.T) {
	gateway := newMockGateway()
	svc := newTestService(gateway)

	stored := types.NewEmptyDraft()
	stored.ID = "char-1"
	stored.Name = "Maren"
	stored.Version = 2
	stored.Status = types.StatusFinalized
	gateway.characters["char-1"] = stored

	edited := stored.Clone()
	saved, err := svc.Save(context.Background(), "user-1", edited, types.StatusDraft)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.Version != 3 {
		t.Fatalf("expected version bump to 3, got %d", saved.Version)
	}
	if saved.ParentBotID == "" {
		t.Fatalf("reopening a finalized record must assign a parent link")
	}
	if saved.Status != types.StatusDraft {
		t.Fatalf("unexpected status: %s", saved.Status)
	}
}

func TestSaveFinalizedBackToDraftKeepsExistingParent(t *testing.T) {
	gateway := newMockGateway()
	svc := newTestService(gateway)

	stored := types.NewEmptyDraft()
	stored.ID = "char-1"
	stored.Name = "Maren"
	stored.Status = types.StatusFinalized
	stored.ParentBotID = "lineage-1"
	gateway.characters["char-1"] = stored

	saved, err := svc.Save(context.Background(), "user-1", stored.Clone(), types.StatusDraft)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.ParentBotID != "lineage-1" {
		t.Fatalf("existing parent link must survive, got %s", saved.ParentBotID)
	}
}

func TestSaveDraftToDraftNoBump(t *testing.T) {
	gateway := newMockGateway()
	svc := newTestService(gateway)

	stored := types.NewEmptyDraft()
	stored.ID = "char-1"
	stored.Name = "Maren"
	gateway.characters["char-1"] = stored

	saved, err := svc.Save(context.Background(), "user-1", stored.Clone(), types.StatusDraft)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.Version != 1 || saved.ParentBotID != "" {
		t.Fatalf("draft resave must not bump version or assign parent: %+v", saved)
	}
}

func TestSaveFinalize(t *testing.T) {
	gateway := newMockGateway()
	svc := newTestService(gateway)
	record := types.NewEmptyDraft()
	record.Name = "Maren"

	saved, err := svc.Save(context.Background(), "user-1", record, types.StatusFinalized)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.Status != types.StatusFinalized || saved.Version != 1 {
		t.Fatalf("unexpected finalized state: %+v", saved)
	}
}

func TestSaveUnknownStatusFallsBackToDraft(t *testing.T) {
	svc := newTestService(newMockGateway())
	record := types.NewEmptyDraft()
	record.Name = "Maren"

	saved, err := svc.Save(context.Background(), "user-1", record, "archived")
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.Status != types.StatusDraft {
		t.Fatalf("unknown status must coerce to draft, got %s", saved.Status)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("same prompt")
	b := Fingerprint("same prompt")
	if a != b || len(a) != 64 {
		t.Fatalf("fingerprint must be a stable sha256 hex: %s %s", a, b)
	}
	if a == Fingerprint("different prompt") {
		t.Fatalf("different prompts must not collide")
	}
}
