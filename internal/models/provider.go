// Package models 提供各家模型提供方的适配器实现。
package models

import (
	"context"
	"errors"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/types"
)

// Vendor identifiers.
const (
	VendorGemini     = "gemini"
	VendorGrok       = "grok"
	VendorOpenAI     = "openai"
	VendorOpenRouter = "openrouter"
)

// Image prompt subjects.
const (
	SubjectCharacter = "character"
	SubjectScenario  = "scenario"
)

// ErrProviderCall is the generic failure every adapter maps vendor
// transport/auth errors onto. Vendor detail goes to the log, not the caller.
var ErrProviderCall = errors.New("provider call failed")

// ErrNoCredential is returned when a vendor call needs a credential and
// none has been injected.
var ErrNoCredential = errors.New("no credential configured")

// RefineOptions carries the knobs of a prompt-refinement call.
type RefineOptions struct {
	Tags           []catalog.Tag
	NSFW           bool
	Model          string
	UseWebResearch bool
	ResponseLength string
}

// RefineResult is the refined prompt plus optional grounding references.
type RefineResult struct {
	Text                string
	GroundingReferences []types.GroundingReference
}

// StructuredRequest asks for a character name plus one value per requested
// field label.
type StructuredRequest struct {
	ModifiedPrompt string
	Labels         []string
	Existing       []types.CharacterField
	Tags           []catalog.Tag
	NSFW           bool
	Model          string
	UseWebResearch bool
}

// StructuredResult is the parsed structured-content response.
type StructuredResult struct {
	Name                string
	Fields              map[string]string
	GroundingReferences []types.GroundingReference
}

// ChatRequest is one chat turn: system rules plus a bounded transcript.
type ChatRequest struct {
	SystemRules    string
	Messages       []types.ChatMessage
	Model          string
	NSFW           bool
	ResponseLength string
}

// Adapter is the capability set every vendor implements. Vendors missing a
// capability degrade to the documented defaults instead of failing:
// GenerateImage returns "", GenerateLoreCards returns an empty list, and
// grounding requests fall back to plain generation.
type Adapter interface {
	Vendor() string

	// SetCredential stores the credential used by subsequent calls.
	// In-flight calls keep the client they captured at entry.
	SetCredential(secret string)

	RefinePrompt(ctx context.Context, userPrompt string, opts RefineOptions) (RefineResult, error)
	GenerateStructuredContent(ctx context.Context, req StructuredRequest) (StructuredResult, error)
	GenerateImagePrompt(ctx context.Context, concept, subject string, nsfw bool, model string) (string, error)
	// GenerateImage returns a data URI, or "" when the vendor lacks image
	// capability or generation fails softly.
	GenerateImage(ctx context.Context, imagePrompt string, nsfw bool, model string) (string, error)
	GenerateLoreCards(ctx context.Context, concept string, nsfw bool, model string) ([]types.LoreCard, error)
	GenerateSystemRules(ctx context.Context, concept string, tags []catalog.Tag, content string, nsfw bool, model string) (string, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
