package types

import "time"

// Record status values.
const (
	StatusDraft     = "draft"
	StatusFinalized = "finalized"
)

// CharacterField is one platform-defined slot on a character profile.
// Locked fields are never overwritten by a generation run.
type CharacterField struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Locked bool   `json:"is_locked"`
	Format string `json:"format,omitempty"`
}

// LoreCard is a single world-building entry.
type LoreCard struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// GroundingReference is a source citation returned by web-augmented generation.
type GroundingReference struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// CharacterRecord is the aggregate the generation pipeline mutates and the
// persistence gateway stores as an opaque blob.
type CharacterRecord struct {
	ID      string `json:"id,omitempty"`
	UserID  string `json:"user_id"`
	Version int    `json:"version"`
	Status  string `json:"status"`
	Name    string `json:"name"`

	// Fields is ordered and label-unique within the active platform set.
	Fields []CharacterField `json:"fields"`

	CharacterImageURL    string `json:"character_image_url"`
	CharacterImageLocked bool   `json:"character_image_locked"`
	CharacterImagePrompt string `json:"character_image_prompt"`
	ScenarioImageURL     string `json:"scenario_image_url"`
	ScenarioImageLocked  bool   `json:"scenario_image_locked"`
	ScenarioImagePrompt  string `json:"scenario_image_prompt"`

	Tags []string `json:"tags"`
	NSFW bool     `json:"is_nsfw"`

	OriginalPrompt string `json:"original_prompt"`
	ModifiedPrompt string `json:"modified_prompt"`
	// PromptHistory is append-only; superseded modified prompts land here.
	PromptHistory []string `json:"prompt_history,omitempty"`

	SystemRules string     `json:"system_rules,omitempty"`
	WorldInfo   []LoreCard `json:"world_info,omitempty"`

	// ParentBotID links all versions of one conceptual character.
	ParentBotID string `json:"parent_bot_id,omitempty"`

	// PromptEmbedding backs similarity search; never serialized to clients.
	PromptEmbedding []float32 `json:"-"`

	GroundingReferences []GroundingReference `json:"grounding_references,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEmptyDraft is the sentinel returned when a requested character does
// not exist: a fresh unsaved draft the caller edits from scratch.
func NewEmptyDraft() *CharacterRecord {
	return &CharacterRecord{
		Status:  StatusDraft,
		Version: 1,
	}
}

// Clone returns a deep copy so a pipeline run can mutate a working copy
// without partial writes becoming observable.
func (r *CharacterRecord) Clone() *CharacterRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Fields = append([]CharacterField(nil), r.Fields...)
	clone.Tags = append([]string(nil), r.Tags...)
	clone.PromptHistory = append([]string(nil), r.PromptHistory...)
	clone.WorldInfo = append([]LoreCard(nil), r.WorldInfo...)
	clone.PromptEmbedding = append([]float32(nil), r.PromptEmbedding...)
	clone.GroundingReferences = append([]GroundingReference(nil), r.GroundingReferences...)
	return &clone
}

// FieldByLabel returns the field with the given label, or nil.
func (r *CharacterRecord) FieldByLabel(label string) *CharacterField {
	for i := range r.Fields {
		if r.Fields[i].Label == label {
			return &r.Fields[i]
		}
	}
	return nil
}

// FirstMessageField names the slot used to seed a chat session.
const FirstMessageField = "First Message"

// FirstMessage returns the character's configured opening line, if any.
func (r *CharacterRecord) FirstMessage() string {
	if f := r.FieldByLabel(FirstMessageField); f != nil {
		return f.Value
	}
	return ""
}
