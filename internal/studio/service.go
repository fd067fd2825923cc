// Package studio wires the generation pipeline, provider registry, vault,
// and persistence gateway into the operations the API exposes.
package studio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/easeaico/persona-studio/internal/bundle"
	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/embedding"
	"github.com/easeaico/persona-studio/internal/models"
	"github.com/easeaico/persona-studio/internal/pipeline"
	"github.com/easeaico/persona-studio/internal/types"
	"github.com/easeaico/persona-studio/internal/vault"
)

var (
	// ErrNameRequired rejects saving a record without a name.
	ErrNameRequired = errors.New("character name is required")
	// ErrUnknownModel rejects a model id missing from the catalog.
	ErrUnknownModel = errors.New("unknown model")
)

// Gateway is the persistence boundary the service writes through.
type Gateway interface {
	GetCharacter(ctx context.Context, id string) (*types.CharacterRecord, error)
	SaveCharacter(ctx context.Context, userID string, record *types.CharacterRecord, fingerprint string) (*types.CharacterRecord, error)
	ListCharacters(ctx context.Context, userID string) ([]types.CharacterRecord, error)
	DeleteCharacter(ctx context.Context, id string) error
	GetChatSession(ctx context.Context, characterID, userID string) (*types.ChatSession, error)
	SaveChatSession(ctx context.Context, session *types.ChatSession) error
	SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]types.CharacterRecord, error)
}

// CredentialSource resolves per-user vendor secrets.
type CredentialSource interface {
	GetSecret(ctx context.Context, userID, vendor string) (string, error)
}

// Service is the application facade over the core components.
type Service struct {
	gateway  Gateway
	registry *models.Registry
	secrets  CredentialSource
	catalog  *catalog.Catalog
	pipeline *pipeline.Pipeline
	embedder embedding.Embedder
}

// New creates a Service. secrets and embedder may be nil; without secrets
// only ambient credentials work, without an embedder similarity search is
// disabled.
func New(gateway Gateway, registry *models.Registry, secrets CredentialSource, cat *catalog.Catalog, pipe *pipeline.Pipeline, embedder embedding.Embedder) *Service {
	return &Service{
		gateway:  gateway,
		registry: registry,
		secrets:  secrets,
		catalog:  cat,
		pipeline: pipe,
		embedder: embedder,
	}
}

// Pipeline exposes the run state for UI polling.
func (s *Service) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Gateway exposes the persistence boundary, e.g. for chat engines.
func (s *Service) Gateway() Gateway {
	return s.gateway
}

// GenerateRequest carries one generation run's inputs.
type GenerateRequest struct {
	UserID         string   `json:"user_id"`
	CharacterID    string   `json:"character_id,omitempty"`
	Prompt         string   `json:"prompt"`
	TextModel      string   `json:"text_model"`
	ImageModel     string   `json:"image_model"`
	Platforms      []string `json:"platforms"`
	Tags           []string `json:"tags"`
	NSFW           bool     `json:"is_nsfw"`
	UseWebResearch bool     `json:"use_web_research"`
	ResponseLength string   `json:"response_length,omitempty"`
}

// Generate runs the pipeline and returns the updated (unsaved) record.
// Persisting is a separate user action.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*types.CharacterRecord, error) {
	record := types.NewEmptyDraft()
	if req.CharacterID != "" {
		var err error
		record, err = s.gateway.GetCharacter(ctx, req.CharacterID)
		if err != nil {
			return nil, err
		}
	}
	record.OriginalPrompt = req.Prompt
	record.Tags = req.Tags
	record.NSFW = req.NSFW

	text, err := s.AdapterFor(ctx, req.UserID, req.TextModel)
	if err != nil {
		return nil, err
	}

	var image models.Adapter
	if catalog.ImageEnabled(req.ImageModel) {
		image, err = s.AdapterFor(ctx, req.UserID, req.ImageModel)
		if err != nil {
			return nil, err
		}
	}

	err = s.pipeline.Run(ctx, record, pipeline.Inputs{
		Text:           text,
		Image:          image,
		TextModel:      req.TextModel,
		ImageModel:     req.ImageModel,
		Platforms:      req.Platforms,
		UseWebResearch: req.UseWebResearch,
		ResponseLength: req.ResponseLength,
	})
	if err != nil {
		return nil, err
	}

	s.embedPrompt(ctx, record)
	return record, nil
}

// embedPrompt attaches a prompt embedding for similarity search. Best
// effort: a failure only disables similarity for this record.
func (s *Service) embedPrompt(ctx context.Context, record *types.CharacterRecord) {
	if s.embedder == nil || strings.TrimSpace(record.ModifiedPrompt) == "" {
		return
	}
	vec, err := s.embedder.EmbedDocument(ctx, record.ModifiedPrompt)
	if err != nil {
		slog.Warn("prompt embedding failed", "error", err.Error())
		return
	}
	record.PromptEmbedding = vec
}

// Save persists the record with the requested target status, applying the
// version rules: saving a stored-finalized record back to draft bumps the
// version and assigns a parent link if none exists; every other transition
// leaves the version alone.
func (s *Service) Save(ctx context.Context, userID string, record *types.CharacterRecord, targetStatus string) (*types.CharacterRecord, error) {
	if record == nil || strings.TrimSpace(record.Name) == "" {
		return nil, ErrNameRequired
	}
	if targetStatus != types.StatusFinalized {
		targetStatus = types.StatusDraft
	}

	saved := record.Clone()
	if saved.ID != "" {
		stored, err := s.gateway.GetCharacter(ctx, saved.ID)
		if err != nil {
			return nil, err
		}
		if stored.Status == types.StatusFinalized && targetStatus == types.StatusDraft {
			saved.Version = stored.Version + 1
			if saved.ParentBotID == "" {
				saved.ParentBotID = uuid.NewString()
			}
		}
	}
	saved.Status = targetStatus

	return s.gateway.SaveCharacter(ctx, userID, saved, Fingerprint(saved.OriginalPrompt))
}

// Get returns the stored record or an empty draft sentinel.
func (s *Service) Get(ctx context.Context, id string) (*types.CharacterRecord, error) {
	return s.gateway.GetCharacter(ctx, id)
}

func (s *Service) List(ctx context.Context, userID string) ([]types.CharacterRecord, error) {
	return s.gateway.ListCharacters(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.gateway.DeleteCharacter(ctx, id)
}

// GenerateLore extracts world-info cards for a record using its refined
// prompt. Vendors without the capability yield an empty list.
func (s *Service) GenerateLore(ctx context.Context, userID, modelID string, record *types.CharacterRecord) ([]types.LoreCard, error) {
	adapter, err := s.AdapterFor(ctx, userID, modelID)
	if err != nil {
		return nil, err
	}
	concept := record.ModifiedPrompt
	if strings.TrimSpace(concept) == "" {
		concept = record.OriginalPrompt
	}
	return adapter.GenerateLoreCards(ctx, concept, record.NSFW, modelID)
}

// FindSimilar returns the user's records closest to the given prompt.
func (s *Service) FindSimilar(ctx context.Context, userID, promptText string, topK int) ([]types.CharacterRecord, error) {
	if s.embedder == nil {
		return nil, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, promptText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.gateway.SearchSimilar(ctx, userID, vec, topK)
}

// Export packs the stored record into a bundle archive.
func (s *Service) Export(ctx context.Context, id string) ([]byte, error) {
	record, err := s.gateway.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	return bundle.Export(record)
}

// Import recovers a record from a bundle and persists it as the user's new
// character.
func (s *Service) Import(ctx context.Context, userID string, data []byte) (*types.CharacterRecord, error) {
	record, err := bundle.Import(data)
	if err != nil {
		return nil, err
	}
	return s.Save(ctx, userID, record, record.Status)
}

// AdapterFor resolves a catalog model id to its vendor adapter with the
// caller's credential injected. Users without a stored secret fall back to
// the ambient credential, which always covers the built-in default vendor.
func (s *Service) AdapterFor(ctx context.Context, userID, modelID string) (models.Adapter, error) {
	model, ok := s.catalog.Model(modelID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	var credential string
	if s.secrets != nil {
		secret, err := s.secrets.GetSecret(ctx, userID, model.Vendor)
		switch {
		case errors.Is(err, vault.ErrNotFound):
			// ambient fallback
		case err != nil:
			return nil, err
		default:
			credential = secret
		}
	}
	return s.registry.Get(model.Vendor, credential)
}

// Fingerprint hashes the originating prompt for dedupe/audit.
func Fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
