package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/models"
	"github.com/easeaico/persona-studio/internal/types"
)

type mockAdapter struct {
	refined     string
	name        string
	fields      map[string]string
	imagePrompt string
	imageData   string
	systemRules string
	failStage   string
	// refineGate, when set, holds the refine stage until closed.
	refineGate    chan struct{}
	imagePrompts  []string
	imageRequests int
}

func (m *mockAdapter) Vendor() string         { return "mock" }
func (m *mockAdapter) SetCredential(_ string) {}

func (m *mockAdapter) RefinePrompt(_ context.Context, _ string, _ models.RefineOptions) (models.RefineResult, error) {
	if m.failStage == "refine" {
		return models.RefineResult{}, errors.New("refine blew up")
	}
	if m.refineGate != nil {
		<-m.refineGate
	}
	return models.RefineResult{Text: m.refined}, nil
}

func (m *mockAdapter) GenerateStructuredContent(_ context.Context, _ models.StructuredRequest) (models.StructuredResult, error) {
	if m.failStage == "content" {
		return models.StructuredResult{}, errors.New("content blew up")
	}
	return models.StructuredResult{Name: m.name, Fields: m.fields}, nil
}

func (m *mockAdapter) GenerateImagePrompt(_ context.Context, _, subject string, _ bool, _ string) (string, error) {
	if m.failStage == "image-prompt" {
		return "", errors.New("image prompt blew up")
	}
	m.imagePrompts = append(m.imagePrompts, subject)
	return m.imagePrompt, nil
}

func (m *mockAdapter) GenerateImage(_ context.Context, _ string, _ bool, _ string) (string, error) {
	if m.failStage == "image" {
		return "", errors.New("image blew up")
	}
	m.imageRequests++
	return m.imageData, nil
}

func (m *mockAdapter) GenerateLoreCards(_ context.Context, _ string, _ bool, _ string) ([]types.LoreCard, error) {
	return nil, nil
}

func (m *mockAdapter) GenerateSystemRules(_ context.Context, _ string, _ []catalog.Tag, _ string, _ bool, _ string) (string, error) {
	if m.failStage == "rules" {
		return "", errors.New("rules blew up")
	}
	return m.systemRules, nil
}

func (m *mockAdapter) Chat(_ context.Context, _ models.ChatRequest) (string, error) {
	return "", nil
}

type mockMedia struct {
	stored []string
	url    string
}

func (m *mockMedia) Store(_ context.Context, _, dataURI, _ string) (string, error) {
	m.stored = append(m.stored, dataURI)
	return m.url, nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return cat
}

func textOnlyInputs(adapter *mockAdapter) Inputs {
	return Inputs{
		Text:       adapter,
		TextModel:  "grok-4-fast",
		ImageModel: catalog.ImageModelNone,
		Platforms:  []string{"tavern"},
	}
}

func TestRunRequiresPrompt(t *testing.T) {
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "   "

	if err := p.Run(context.Background(), record, textOnlyInputs(&mockAdapter{})); !errors.Is(err, ErrPromptRequired) {
		t.Fatalf("expected ErrPromptRequired, got %v", err)
	}
}

func TestRunPopulatesRecord(t *testing.T) {
	adapter := &mockAdapter{
		refined:     "a stoic lighthouse keeper",
		name:        "Maren",
		fields:      map[string]string{"Personality": "stoic", "First Message": "The fog is thick tonight."},
		systemRules: "Stay in character.",
	}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "lighthouse keeper"
	record.Status = types.StatusFinalized

	if err := p.Run(context.Background(), record, textOnlyInputs(adapter)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if record.Status != types.StatusDraft {
		t.Fatalf("expected status forced to draft, got %s", record.Status)
	}
	if record.Name != "Maren" {
		t.Fatalf("unexpected name: %s", record.Name)
	}
	if record.ModifiedPrompt != "a stoic lighthouse keeper" {
		t.Fatalf("unexpected modified prompt: %s", record.ModifiedPrompt)
	}
	if record.SystemRules != "Stay in character." {
		t.Fatalf("unexpected system rules: %s", record.SystemRules)
	}
	// Tavern requires five labels; every one must exist even without a value.
	if len(record.Fields) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(record.Fields))
	}
	if f := record.FieldByLabel("Personality"); f == nil || f.Value != "stoic" {
		t.Fatalf("unexpected personality field: %+v", f)
	}
	if f := record.FieldByLabel("Example Dialogue"); f == nil || f.Value != "" {
		t.Fatalf("expected empty placeholder for ungenerated label, got %+v", f)
	}
}

func TestRunFailureLeavesRecordUntouched(t *testing.T) {
	adapter := &mockAdapter{refined: "refined", failStage: "content"}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.ID = "char-1"
	record.OriginalPrompt = "prompt"
	record.ModifiedPrompt = "previous refinement"
	record.Name = "Before"

	err := p.Run(context.Background(), record, textOnlyInputs(adapter))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if record.Name != "Before" || record.ModifiedPrompt != "previous refinement" {
		t.Fatalf("record mutated by failed run: %+v", record)
	}
	if len(record.PromptHistory) != 0 {
		t.Fatalf("prompt history must not change on failed run, got %v", record.PromptHistory)
	}
	if p.LastError("char-1") == nil {
		t.Fatalf("expected detailed error in LastError")
	}

	// A later successful run clears the stored failure.
	adapter.failStage = ""
	adapter.fields = map[string]string{}
	if err := p.Run(context.Background(), record, textOnlyInputs(adapter)); err != nil {
		t.Fatalf("rerun returned error: %v", err)
	}
	if p.LastError("char-1") != nil {
		t.Fatalf("stale error survived a successful rerun")
	}
}

func TestRunPromptHistoryPushedOncePerChange(t *testing.T) {
	adapter := &mockAdapter{refined: "second", fields: map[string]string{}}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "prompt"
	record.ModifiedPrompt = "first"

	if err := p.Run(context.Background(), record, textOnlyInputs(adapter)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(record.PromptHistory) != 1 || record.PromptHistory[0] != "first" {
		t.Fatalf("expected one superseded entry, got %v", record.PromptHistory)
	}

	// Rerun with an unchanged refinement; history must not grow.
	if err := p.Run(context.Background(), record, textOnlyInputs(adapter)); err != nil {
		t.Fatalf("rerun returned error: %v", err)
	}
	if len(record.PromptHistory) != 1 {
		t.Fatalf("history grew on unchanged refinement: %v", record.PromptHistory)
	}
}

func TestRunLockedFieldSurvivesGeneration(t *testing.T) {
	adapter := &mockAdapter{
		refined: "refined",
		fields:  map[string]string{"Personality": "overwritten"},
	}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "prompt"
	record.Fields = []types.CharacterField{
		{ID: "f1", Label: "Personality", Value: "hand written", Locked: true},
	}

	if err := p.Run(context.Background(), record, textOnlyInputs(adapter)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	f := record.FieldByLabel("Personality")
	if f == nil || f.Value != "hand written" || !f.Locked || f.ID != "f1" {
		t.Fatalf("locked field was modified: %+v", f)
	}
}

func TestRunImageStagesSkippedWhenDisabled(t *testing.T) {
	adapter := &mockAdapter{refined: "refined", imagePrompt: "portrait", imageData: "data:image/png;base64,AA=="}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "prompt"

	in := textOnlyInputs(adapter)
	in.Image = adapter
	in.ImageModel = catalog.ImageModelNone
	if err := p.Run(context.Background(), record, in); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if adapter.imageRequests != 0 || record.CharacterImageURL != "" {
		t.Fatalf("image stages ran despite disabled model")
	}
}

func TestRunLockedImageSlotSkipped(t *testing.T) {
	adapter := &mockAdapter{refined: "refined", imagePrompt: "portrait", imageData: "data:image/png;base64,AA=="}
	media := &mockMedia{url: "/media/u/x.png"}
	p := New(testCatalog(t), media, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "prompt"
	record.CharacterImageLocked = true
	record.CharacterImageURL = "/media/u/old.png"

	in := textOnlyInputs(adapter)
	in.Image = adapter
	in.ImageModel = "gemini-2.5-flash-image"
	if err := p.Run(context.Background(), record, in); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if record.CharacterImageURL != "/media/u/old.png" {
		t.Fatalf("locked character image replaced: %s", record.CharacterImageURL)
	}
	// Scenario slot is unlocked and must still be generated.
	if record.ScenarioImageURL != "/media/u/x.png" {
		t.Fatalf("unexpected scenario image url: %s", record.ScenarioImageURL)
	}
	if adapter.imageRequests != 1 {
		t.Fatalf("expected exactly one image request, got %d", adapter.imageRequests)
	}
	if len(adapter.imagePrompts) != 1 || adapter.imagePrompts[0] != models.SubjectScenario {
		t.Fatalf("unexpected image prompt subjects: %v", adapter.imagePrompts)
	}
}

func TestRunKeepsDataURIWhenMediaStoreMissing(t *testing.T) {
	adapter := &mockAdapter{refined: "refined", imagePrompt: "portrait", imageData: "data:image/png;base64,AA=="}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "prompt"

	in := textOnlyInputs(adapter)
	in.Image = adapter
	in.ImageModel = "gemini-2.5-flash-image"
	if err := p.Run(context.Background(), record, in); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if record.CharacterImageURL != "data:image/png;base64,AA==" {
		t.Fatalf("expected raw data uri fallback, got %s", record.CharacterImageURL)
	}
}

func waitRunning(t *testing.T, p *Pipeline, recordID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Running(recordID) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("run on %s never entered flight", recordID)
}

func TestRunRejectsConcurrentRunOnSameRecord(t *testing.T) {
	gated := &mockAdapter{refined: "refined", fields: map[string]string{}, refineGate: make(chan struct{})}
	p := New(testCatalog(t), nil, nil)

	record := types.NewEmptyDraft()
	record.ID = "char-1"
	record.OriginalPrompt = "prompt"

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), record, textOnlyInputs(gated))
	}()
	waitRunning(t, p, "char-1")

	second := types.NewEmptyDraft()
	second.ID = "char-1"
	second.OriginalPrompt = "prompt"
	if err := p.Run(context.Background(), second, textOnlyInputs(&mockAdapter{refined: "x", fields: map[string]string{}})); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning for the same record, got %v", err)
	}

	close(gated.refineGate)
	if err := <-done; err != nil {
		t.Fatalf("gated run returned error: %v", err)
	}
	if p.Running("char-1") {
		t.Fatalf("running flag must clear after the run completes")
	}
}

func TestRunAllowsConcurrentRunsOnOtherRecords(t *testing.T) {
	gated := &mockAdapter{refined: "refined", fields: map[string]string{}, refineGate: make(chan struct{})}
	p := New(testCatalog(t), nil, nil)

	first := types.NewEmptyDraft()
	first.ID = "char-1"
	first.OriginalPrompt = "prompt"

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), first, textOnlyInputs(gated))
	}()
	waitRunning(t, p, "char-1")

	// Another user's record runs to completion while char-1 is in flight.
	other := types.NewEmptyDraft()
	other.ID = "char-2"
	other.OriginalPrompt = "prompt"
	if err := p.Run(context.Background(), other, textOnlyInputs(&mockAdapter{refined: "other", fields: map[string]string{}})); err != nil {
		t.Fatalf("run on a different record was blocked: %v", err)
	}

	// So does a fresh draft with no identity yet.
	draft := types.NewEmptyDraft()
	draft.OriginalPrompt = "prompt"
	if err := p.Run(context.Background(), draft, textOnlyInputs(&mockAdapter{refined: "draft", fields: map[string]string{}})); err != nil {
		t.Fatalf("run on an unsaved draft was blocked: %v", err)
	}

	close(gated.refineGate)
	if err := <-done; err != nil {
		t.Fatalf("gated run returned error: %v", err)
	}
}

func TestRunSoftImageFailureKeepsPreviousURL(t *testing.T) {
	adapter := &mockAdapter{refined: "refined", imagePrompt: "portrait", imageData: ""}
	p := New(testCatalog(t), nil, nil)
	record := types.NewEmptyDraft()
	record.OriginalPrompt = "prompt"
	record.ScenarioImageURL = "/media/u/prev.png"

	in := textOnlyInputs(adapter)
	in.Image = adapter
	in.ImageModel = "gemini-2.5-flash-image"
	if err := p.Run(context.Background(), record, in); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if record.ScenarioImageURL != "/media/u/prev.png" {
		t.Fatalf("soft image failure cleared the slot: %s", record.ScenarioImageURL)
	}
}
