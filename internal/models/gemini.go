package models

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/prompt"
	"github.com/easeaico/persona-studio/internal/types"
	"github.com/easeaico/persona-studio/internal/utils"
)

// geminiAdapter is the built-in default vendor: text, images, and search
// grounding through the GenAI API.
type geminiAdapter struct {
	aspectRatio string

	mu     sync.Mutex
	apiKey string
	client *genai.Client
}

// NewGeminiAdapter creates the Gemini adapter. aspectRatio applies to every
// generated image.
func NewGeminiAdapter(aspectRatio string) Adapter {
	return &geminiAdapter{aspectRatio: normalizeAspectRatio(aspectRatio)}
}

func (g *geminiAdapter) Vendor() string {
	return VendorGemini
}

// SetCredential invalidates the cached client when the key changes. The
// client is rebuilt lazily on the next call; in-flight calls keep the
// client they captured at entry.
func (g *geminiAdapter) SetCredential(secret string) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return
	}
	g.mu.Lock()
	if secret != g.apiKey {
		g.apiKey = secret
		g.client = nil
	}
	g.mu.Unlock()
}

func (g *geminiAdapter) conn(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, ErrNoCredential
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.client = client
	return client, nil
}

// generate runs one instruction/input pair, optionally with search
// grounding, and returns the text plus any grounding references.
func (g *geminiAdapter) generate(ctx context.Context, model, instruction, input string, ground bool) (string, []types.GroundingReference, error) {
	client, err := g.conn(ctx)
	if err != nil {
		return "", nil, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	}
	if ground {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(input), config)
	if err != nil {
		slog.Error("gemini generation failed", "model", model, "error", err.Error())
		return "", nil, fmt.Errorf("%s: %w", VendorGemini, ErrProviderCall)
	}
	text := responseText(resp)
	if text == "" {
		slog.Error("empty gemini response", "model", model)
		return "", nil, fmt.Errorf("%s: %w", VendorGemini, ErrProviderCall)
	}
	return text, groundingReferences(resp), nil
}

func (g *geminiAdapter) RefinePrompt(ctx context.Context, userPrompt string, opts RefineOptions) (RefineResult, error) {
	instruction, err := prompt.Refine(opts.Tags, opts.NSFW, opts.ResponseLength)
	if err != nil {
		return RefineResult{}, err
	}
	text, refs, err := g.generate(ctx, opts.Model, instruction, userPrompt, opts.UseWebResearch)
	if err != nil {
		return RefineResult{}, err
	}
	return RefineResult{Text: text, GroundingReferences: refs}, nil
}

func (g *geminiAdapter) GenerateStructuredContent(ctx context.Context, req StructuredRequest) (StructuredResult, error) {
	instruction, err := prompt.Structured(req.Labels, req.Existing, req.Tags, req.NSFW)
	if err != nil {
		return StructuredResult{}, err
	}

	client, err := g.conn(ctx)
	if err != nil {
		return StructuredResult{}, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	}
	// Search grounding and a response schema are mutually exclusive on this
	// API; with research requested the schema is enforced by instruction
	// and recovered by the wrapper-tolerant parser.
	if req.UseWebResearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = structuredResponseSchema()
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.ModifiedPrompt), config)
	if err != nil {
		slog.Error("gemini structured generation failed", "model", req.Model, "error", err.Error())
		return StructuredResult{}, fmt.Errorf("%s: %w", VendorGemini, ErrProviderCall)
	}

	output, err := utils.ParseStructuredOutput(responseText(resp))
	if err != nil {
		slog.Error("unparseable structured output", "vendor", VendorGemini, "error", err.Error())
		return StructuredResult{}, fmt.Errorf("%s: %w", VendorGemini, ErrProviderCall)
	}
	return StructuredResult{
		Name:                output.Name,
		Fields:              fieldMap(output),
		GroundingReferences: groundingReferences(resp),
	}, nil
}

func (g *geminiAdapter) GenerateImagePrompt(ctx context.Context, concept, subject string, nsfw bool, model string) (string, error) {
	instruction, err := prompt.ImagePrompt(subject, nsfw)
	if err != nil {
		return "", err
	}
	text, _, err := g.generate(ctx, model, instruction, concept, false)
	return text, err
}

// GenerateImage returns a data URI, or "" on soft failure.
func (g *geminiAdapter) GenerateImage(ctx context.Context, imagePrompt string, nsfw bool, model string) (string, error) {
	client, err := g.conn(ctx)
	if err != nil {
		return "", err
	}
	imagePrompt = strings.TrimSpace(imagePrompt)
	if imagePrompt == "" {
		return "", nil
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: g.aspectRatio,
		},
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(imagePrompt), config)
	if err != nil {
		slog.Warn("gemini image generation failed", "model", model, "error", err.Error())
		return "", nil
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", nil
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mimeType := strings.TrimSpace(part.InlineData.MIMEType)
		if mimeType == "" {
			mimeType = "image/png"
		}
		encoded := base64.StdEncoding.EncodeToString(part.InlineData.Data)
		return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), nil
	}
	return "", nil
}

func (g *geminiAdapter) GenerateLoreCards(ctx context.Context, concept string, nsfw bool, model string) ([]types.LoreCard, error) {
	instruction, err := prompt.Lore()
	if err != nil {
		return nil, err
	}
	raw, _, err := g.generate(ctx, model, instruction, concept, false)
	if err != nil {
		return nil, err
	}
	return loreCards(utils.ParseLoreOutput(raw)), nil
}

func (g *geminiAdapter) GenerateSystemRules(ctx context.Context, concept string, tags []catalog.Tag, content string, nsfw bool, model string) (string, error) {
	instruction, err := prompt.SystemRules(tags, content, nsfw)
	if err != nil {
		return "", err
	}
	text, _, err := g.generate(ctx, model, instruction, concept, false)
	return text, err
}

func (g *geminiAdapter) Chat(ctx context.Context, req ChatRequest) (string, error) {
	client, err := g.conn(ctx)
	if err != nil {
		return "", err
	}

	system, err := prompt.ChatSystem(req.SystemRules, req.ResponseLength)
	if err != nil {
		return "", err
	}

	contents := chatContents(req.Messages)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		slog.Error("gemini chat turn failed", "model", req.Model, "error", err.Error())
		return "", fmt.Errorf("%s: %w", VendorGemini, ErrProviderCall)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%s: %w", VendorGemini, ErrProviderCall)
	}
	return text, nil
}

// chatContents maps a session transcript onto gemini contents, keeping the
// user/model role split intact.
func chatContents(messages []types.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == types.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// structuredResponseSchema mirrors prompt.StructuredSchema for vendors with
// native schema enforcement.
func structuredResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {Type: genai.TypeString},
			"fields": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"label": {Type: genai.TypeString},
						"value": {Type: genai.TypeString},
					},
					Required: []string{"label", "value"},
				},
			},
		},
		Required:         []string{"name", "fields"},
		PropertyOrdering: []string{"name", "fields"},
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func groundingReferences(resp *genai.GenerateContentResponse) []types.GroundingReference {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	metadata := resp.Candidates[0].GroundingMetadata
	if metadata == nil {
		return nil
	}
	var refs []types.GroundingReference
	for _, chunk := range metadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		refs = append(refs, types.GroundingReference{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	return refs
}

func normalizeAspectRatio(value string) string {
	value = strings.TrimSpace(value)
	switch value {
	case "1:1", "3:4", "4:3", "9:16", "16:9":
		return value
	default:
		return "3:4"
	}
}
