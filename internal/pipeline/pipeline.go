// Package pipeline runs the staged generation workflow that turns a user
// prompt plus tag/platform constraints into a populated character record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/models"
	"github.com/easeaico/persona-studio/internal/types"
)

var (
	// ErrPromptRequired rejects a run whose trimmed input prompt is empty.
	ErrPromptRequired = errors.New("prompt required")
	// ErrRunning rejects a run started while another run on the same record
	// is in flight.
	ErrRunning = errors.New("generation already running")
	// ErrGenerationFailed is the single generic condition surfaced when any
	// stage fails. Stage detail goes to the log and LastError.
	ErrGenerationFailed = errors.New("generation failed")
)

// MediaStore uploads a generated image for durable hosting. An empty URL
// (or an error) means the caller keeps the raw data URI instead.
type MediaStore interface {
	Store(ctx context.Context, userID, dataURI, kind string) (string, error)
}

// Inputs selects the adapters, models, and constraints of one run.
type Inputs struct {
	Text  models.Adapter
	Image models.Adapter

	TextModel  string
	ImageModel string // catalog.ImageModelNone disables image stages

	Platforms      []string
	UseWebResearch bool
	ResponseLength string
}

// Pipeline executes the stages strictly in order over a working copy and
// commits only on full success.
type Pipeline struct {
	catalog *catalog.Catalog
	media   MediaStore
	// onProgress receives a human-readable label before each stage starts.
	onProgress func(label string)

	mu      sync.Mutex
	running map[string]bool
	lastErr map[string]error
}

// New creates a Pipeline. onProgress may be nil.
func New(cat *catalog.Catalog, media MediaStore, onProgress func(label string)) *Pipeline {
	return &Pipeline{
		catalog:    cat,
		media:      media,
		onProgress: onProgress,
		running:    make(map[string]bool),
		lastErr:    make(map[string]error),
	}
}

// Running reports whether a run is in flight for the given record.
func (p *Pipeline) Running(recordID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[recordID]
}

// LastError returns the detailed error of the record's most recent failed run.
func (p *Pipeline) LastError(recordID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr[recordID]
}

type stage struct {
	label string
	skip  func(working *types.CharacterRecord) bool
	run   func(ctx context.Context, working *types.CharacterRecord) error
}

// Run executes all applicable stages. On success the working copy is
// committed into record with status forced to draft; on failure record is
// left untouched.
func (p *Pipeline) Run(ctx context.Context, record *types.CharacterRecord, in Inputs) error {
	if strings.TrimSpace(record.OriginalPrompt) == "" {
		return ErrPromptRequired
	}

	// Runs are serialized per record. Unsaved drafts have no identity to
	// contend on and always proceed.
	key := record.ID
	p.mu.Lock()
	if key != "" && p.running[key] {
		p.mu.Unlock()
		return ErrRunning
	}
	if key != "" {
		p.running[key] = true
	}
	delete(p.lastErr, key)
	p.mu.Unlock()

	if key != "" {
		defer func() {
			p.mu.Lock()
			delete(p.running, key)
			p.mu.Unlock()
		}()
	}

	working := record.Clone()
	tags := p.catalog.ResolveTags(working.Tags)

	for _, s := range p.stages(in, tags) {
		if s.skip != nil && s.skip(working) {
			continue
		}
		p.progress(s.label)
		if err := s.run(ctx, working); err != nil {
			slog.Error("generation stage failed", "stage", s.label, "error", err.Error())
			p.mu.Lock()
			p.lastErr[key] = fmt.Errorf("stage %q: %w", s.label, err)
			p.mu.Unlock()
			return ErrGenerationFailed
		}
	}

	working.Status = types.StatusDraft
	*record = *working
	return nil
}

func (p *Pipeline) progress(label string) {
	if p.onProgress != nil {
		p.onProgress(label)
	}
}

func (p *Pipeline) stages(in Inputs, tags []catalog.Tag) []stage {
	imagesDisabled := !catalog.ImageEnabled(in.ImageModel) || in.Image == nil

	return []stage{
		{
			label: "Refining prompt",
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				return p.refinePrompt(ctx, working, in, tags)
			},
		},
		{
			label: "Generating character content",
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				return p.generateContent(ctx, working, in, tags)
			},
		},
		{
			label: "Writing character image prompt",
			skip: func(working *types.CharacterRecord) bool {
				return imagesDisabled || working.CharacterImageLocked
			},
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				text, err := in.Text.GenerateImagePrompt(ctx, working.ModifiedPrompt, models.SubjectCharacter, working.NSFW, in.TextModel)
				if err != nil {
					return err
				}
				working.CharacterImagePrompt = text
				return nil
			},
		},
		{
			label: "Generating character image",
			skip: func(working *types.CharacterRecord) bool {
				return imagesDisabled || working.CharacterImageLocked
			},
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				url, err := p.generateImage(ctx, working, in, working.CharacterImagePrompt, "character")
				if err != nil {
					return err
				}
				if url != "" {
					working.CharacterImageURL = url
				}
				return nil
			},
		},
		{
			label: "Writing scenario image prompt",
			skip: func(working *types.CharacterRecord) bool {
				return imagesDisabled || working.ScenarioImageLocked
			},
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				text, err := in.Text.GenerateImagePrompt(ctx, working.ModifiedPrompt, models.SubjectScenario, working.NSFW, in.TextModel)
				if err != nil {
					return err
				}
				working.ScenarioImagePrompt = text
				return nil
			},
		},
		{
			label: "Generating scenario image",
			skip: func(working *types.CharacterRecord) bool {
				return imagesDisabled || working.ScenarioImageLocked
			},
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				url, err := p.generateImage(ctx, working, in, working.ScenarioImagePrompt, "scenario")
				if err != nil {
					return err
				}
				if url != "" {
					working.ScenarioImageURL = url
				}
				return nil
			},
		},
		{
			label: "Writing system rules",
			run: func(ctx context.Context, working *types.CharacterRecord) error {
				rules, err := in.Text.GenerateSystemRules(ctx, working.ModifiedPrompt, tags, fieldContent(working), working.NSFW, in.TextModel)
				if err != nil {
					return err
				}
				working.SystemRules = rules
				return nil
			},
		},
	}
}

func (p *Pipeline) refinePrompt(ctx context.Context, working *types.CharacterRecord, in Inputs, tags []catalog.Tag) error {
	result, err := in.Text.RefinePrompt(ctx, working.OriginalPrompt, models.RefineOptions{
		Tags:           tags,
		NSFW:           working.NSFW,
		Model:          in.TextModel,
		UseWebResearch: in.UseWebResearch,
		ResponseLength: in.ResponseLength,
	})
	if err != nil {
		return err
	}
	// History records a superseded value only when this run changed it.
	if working.ModifiedPrompt != "" && working.ModifiedPrompt != result.Text {
		working.PromptHistory = append(working.PromptHistory, working.ModifiedPrompt)
	}
	working.ModifiedPrompt = result.Text
	if len(result.GroundingReferences) > 0 {
		working.GroundingReferences = result.GroundingReferences
	}
	return nil
}

func (p *Pipeline) generateContent(ctx context.Context, working *types.CharacterRecord, in Inputs, tags []catalog.Tag) error {
	labels := p.catalog.RequiredLabels(in.Platforms)
	result, err := in.Text.GenerateStructuredContent(ctx, models.StructuredRequest{
		ModifiedPrompt: working.ModifiedPrompt,
		Labels:         labels,
		Existing:       working.Fields,
		Tags:           tags,
		NSFW:           working.NSFW,
		Model:          in.TextModel,
		UseWebResearch: in.UseWebResearch,
	})
	if err != nil {
		return err
	}
	if result.Name != "" {
		working.Name = result.Name
	}
	working.Fields = MergeFields(working.Fields, labels, result.Fields)
	if len(result.GroundingReferences) > 0 {
		working.GroundingReferences = result.GroundingReferences
	}
	return nil
}

func (p *Pipeline) generateImage(ctx context.Context, working *types.CharacterRecord, in Inputs, imagePrompt, kind string) (string, error) {
	dataURI, err := in.Image.GenerateImage(ctx, imagePrompt, working.NSFW, in.ImageModel)
	if err != nil {
		return "", err
	}
	if dataURI == "" {
		// No image produced; the slot keeps its previous value.
		return "", nil
	}
	if p.media == nil {
		return dataURI, nil
	}
	url, err := p.media.Store(ctx, working.UserID, dataURI, kind)
	if err != nil || url == "" {
		if err != nil {
			slog.Warn("image storage failed, keeping raw data", "kind", kind, "error", err.Error())
		}
		return dataURI, nil
	}
	return url, nil
}

// fieldContent renders the generated fields for system-rules summarization.
func fieldContent(working *types.CharacterRecord) string {
	var sb strings.Builder
	for _, f := range working.Fields {
		if f.Value == "" {
			continue
		}
		sb.WriteString(f.Label)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\n")
	}
	return sb.String()
}
