package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StructuredOutput is the fixed schema every text vendor must produce for
// structured character generation.
type StructuredOutput struct {
	Name   string        `json:"name"`
	Fields []LabeledText `json:"fields"`
}

// LabeledText is one label/value pair of a structured response.
type LabeledText struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LoreOutput is the structured lore extraction response.
type LoreOutput struct {
	Cards []LoreEntry `json:"cards"`
}

// LoreEntry is one extracted lore card.
type LoreEntry struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// ExtractJSON strips prose wrappers (markdown fences, leading commentary)
// around the first JSON object in a model response.
func ExtractJSON(raw string) string {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		return clean[start : end+1]
	}
	return clean
}

// ParseStructuredOutput extracts and validates a structured generation
// response.
func ParseStructuredOutput(raw string) (StructuredOutput, error) {
	var output StructuredOutput
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &output); err != nil {
		return StructuredOutput{}, fmt.Errorf("failed to parse structured output: %w", err)
	}

	output.Name = strings.TrimSpace(output.Name)
	if output.Name == "" {
		return StructuredOutput{}, fmt.Errorf("missing name in structured output")
	}
	for i := range output.Fields {
		output.Fields[i].Label = strings.TrimSpace(output.Fields[i].Label)
		output.Fields[i].Value = strings.TrimSpace(output.Fields[i].Value)
	}
	return output, nil
}

// ParseLoreOutput extracts lore cards from a model response. A response
// without parseable cards yields an empty list, not an error: lore is an
// optional capability.
func ParseLoreOutput(raw string) []LoreEntry {
	var output LoreOutput
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &output); err != nil {
		return nil
	}
	cards := make([]LoreEntry, 0, len(output.Cards))
	for _, card := range output.Cards {
		card.Label = strings.TrimSpace(card.Label)
		card.Content = strings.TrimSpace(card.Content)
		if card.Label == "" || card.Content == "" {
			continue
		}
		cards = append(cards, card)
	}
	return cards
}
