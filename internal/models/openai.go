package models

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/prompt"
	"github.com/easeaico/persona-studio/internal/types"
	"github.com/easeaico/persona-studio/internal/utils"
)

// openaiAdapter covers every OpenAI-compatible chat vendor. Grok and
// OpenRouter reuse it with their own base URLs; native OpenAI additionally
// exposes the Images API.
type openaiAdapter struct {
	vendor       string
	baseURL      string
	imageCapable bool
	userAgent    string

	mu     sync.Mutex
	client *openai.Client
}

func newOpenAICompatible(vendor, baseURL string, imageCapable bool) *openaiAdapter {
	// Create the UA header value once, not per request.
	userAgent := fmt.Sprintf("%s-go/%s go/%s",
		vendor, "1.0.0", strings.TrimPrefix(runtime.Version(), "go"))

	return &openaiAdapter{
		vendor:       vendor,
		baseURL:      baseURL,
		imageCapable: imageCapable,
		userAgent:    userAgent,
	}
}

// NewOpenAIAdapter targets the native OpenAI API, including images.
func NewOpenAIAdapter() Adapter {
	return newOpenAICompatible(VendorOpenAI, "", true)
}

func (m *openaiAdapter) Vendor() string {
	return m.vendor
}

// SetCredential swaps in a client built for the new secret. Calls snapshot
// the client pointer once at entry, so a concurrent swap never tears an
// in-flight request.
func (m *openaiAdapter) SetCredential(secret string) {
	if strings.TrimSpace(secret) == "" {
		return
	}
	opts := []option.RequestOption{
		option.WithAPIKey(secret),
		option.WithHeader("user-agent", m.userAgent),
	}
	if m.baseURL != "" {
		opts = append(opts, option.WithBaseURL(m.baseURL))
	}
	client := openai.NewClient(opts...)

	m.mu.Lock()
	m.client = &client
	m.mu.Unlock()
}

func (m *openaiAdapter) conn() (*openai.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, ErrNoCredential
	}
	return m.client, nil
}

// complete runs one instruction/input pair through chat completions.
func (m *openaiAdapter) complete(ctx context.Context, model, instruction, input string, maxTokens int64) (string, error) {
	client, err := m.conn()
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(input),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Error("chat completion failed", "vendor", m.vendor, "model", model, "error", err.Error())
		return "", fmt.Errorf("%s: %w", m.vendor, ErrProviderCall)
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Error("empty completion response", "vendor", m.vendor, "model", model)
		return "", fmt.Errorf("%s: %w", m.vendor, ErrProviderCall)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (m *openaiAdapter) RefinePrompt(ctx context.Context, userPrompt string, opts RefineOptions) (RefineResult, error) {
	instruction, err := prompt.Refine(opts.Tags, opts.NSFW, opts.ResponseLength)
	if err != nil {
		return RefineResult{}, err
	}
	// OpenAI-compatible vendors have no grounding support here; a web
	// research request degrades to plain refinement.
	text, err := m.complete(ctx, opts.Model, instruction, userPrompt, maxTokensForLength(opts.ResponseLength))
	if err != nil {
		return RefineResult{}, err
	}
	return RefineResult{Text: text}, nil
}

func (m *openaiAdapter) GenerateStructuredContent(ctx context.Context, req StructuredRequest) (StructuredResult, error) {
	instruction, err := prompt.Structured(req.Labels, req.Existing, req.Tags, req.NSFW)
	if err != nil {
		return StructuredResult{}, err
	}
	raw, err := m.complete(ctx, req.Model, instruction, req.ModifiedPrompt, generationMaxTokens)
	if err != nil {
		return StructuredResult{}, err
	}
	output, err := utils.ParseStructuredOutput(raw)
	if err != nil {
		slog.Error("unparseable structured output", "vendor", m.vendor, "error", err.Error())
		return StructuredResult{}, fmt.Errorf("%s: %w", m.vendor, ErrProviderCall)
	}
	return StructuredResult{Name: output.Name, Fields: fieldMap(output)}, nil
}

func (m *openaiAdapter) GenerateImagePrompt(ctx context.Context, concept, subject string, nsfw bool, model string) (string, error) {
	instruction, err := prompt.ImagePrompt(subject, nsfw)
	if err != nil {
		return "", err
	}
	return m.complete(ctx, model, instruction, concept, maxTokensForLength(prompt.LengthMedium))
}

// GenerateImage returns "" for vendors without the Images API; soft
// generation failures also degrade to "" so callers treat the slot as
// "no image produced".
func (m *openaiAdapter) GenerateImage(ctx context.Context, imagePrompt string, nsfw bool, model string) (string, error) {
	if !m.imageCapable {
		return "", nil
	}
	client, err := m.conn()
	if err != nil {
		return "", err
	}

	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         imagePrompt,
		Model:          openai.ImageModel(model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		slog.Warn("image generation failed", "vendor", m.vendor, "model", model, "error", err.Error())
		return "", nil
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", nil
	}
	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

func (m *openaiAdapter) GenerateLoreCards(ctx context.Context, concept string, nsfw bool, model string) ([]types.LoreCard, error) {
	instruction, err := prompt.Lore()
	if err != nil {
		return nil, err
	}
	raw, err := m.complete(ctx, model, instruction, concept, generationMaxTokens)
	if err != nil {
		return nil, err
	}
	return loreCards(utils.ParseLoreOutput(raw)), nil
}

func (m *openaiAdapter) GenerateSystemRules(ctx context.Context, concept string, tags []catalog.Tag, content string, nsfw bool, model string) (string, error) {
	instruction, err := prompt.SystemRules(tags, content, nsfw)
	if err != nil {
		return "", err
	}
	return m.complete(ctx, model, instruction, concept, generationMaxTokens)
}

func (m *openaiAdapter) Chat(ctx context.Context, req ChatRequest) (string, error) {
	client, err := m.conn()
	if err != nil {
		return "", err
	}

	system, err := prompt.ChatSystem(req.SystemRules, req.ResponseLength)
	if err != nil {
		return "", err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	messages = append(messages, openai.SystemMessage(system))
	messages = append(messages, convertMessages(req.Messages)...)

	params := openai.ChatCompletionNewParams{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: openai.Int(maxTokensForLength(req.ResponseLength)),
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Error("chat turn failed", "vendor", m.vendor, "model", req.Model, "error", err.Error())
		return "", fmt.Errorf("%s: %w", m.vendor, ErrProviderCall)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", m.vendor, ErrProviderCall)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// convertMessages maps transcript entries onto OpenAI chat messages.
func convertMessages(messages []types.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleModel:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}
	return converted
}

const generationMaxTokens = 2048

func maxTokensForLength(length string) int64 {
	switch length {
	case prompt.LengthShort:
		return 256
	case prompt.LengthLong:
		return 1536
	default:
		return 640
	}
}

func fieldMap(output utils.StructuredOutput) map[string]string {
	fields := make(map[string]string, len(output.Fields))
	for _, f := range output.Fields {
		fields[f.Label] = f.Value
	}
	return fields
}

func loreCards(entries []utils.LoreEntry) []types.LoreCard {
	cards := make([]types.LoreCard, 0, len(entries))
	for _, e := range entries {
		cards = append(cards, types.LoreCard{Label: e.Label, Content: e.Content})
	}
	if len(cards) > prompt.MaxLoreCards {
		cards = cards[:prompt.MaxLoreCards]
	}
	return cards
}
