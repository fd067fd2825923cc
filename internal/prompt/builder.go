// Package prompt assembles the instruction blocks handed to provider
// adapters. All vendor-independent prompt text lives here.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/types"
)

// Response length preferences.
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// MaxLoreCards caps how many lore cards a single extraction may produce.
const MaxLoreCards = 6

// tagRules collects the instruction fragments of core-logic tags.
func tagRules(tags []catalog.Tag) []string {
	var rules []string
	for _, t := range tags {
		if t.Core() && t.Rule != "" {
			rules = append(rules, t.Rule)
		}
	}
	return rules
}

// nsfwBlock assembles the NSFW-mode instruction from core-logic tags. The
// block only appears when NSFW mode is on; the per-tag rules still apply
// either way.
func nsfwBlock(nsfw bool, tags []catalog.Tag) string {
	if !nsfw {
		return "NSFW mode is off. Keep all output safe for work."
	}
	var names []string
	for _, t := range tags {
		if t.Core() && t.NSFW {
			names = append(names, t.Name)
		}
	}
	block := "NSFW mode is on. Mature themes are allowed where the concept calls for them."
	if len(names) > 0 {
		block += " Active mature tags: " + strings.Join(names, ", ") + "."
	}
	return block
}

// lengthHint renders a response-length preference as an instruction.
func lengthHint(length string) string {
	switch length {
	case LengthShort:
		return "Keep the response brief: a short paragraph at most."
	case LengthLong:
		return "A long, detailed response is welcome."
	case LengthMedium:
		return "Keep the response to a moderate length."
	default:
		return ""
	}
}

// Refine builds the prompt-refinement instruction.
func Refine(tags []catalog.Tag, nsfw bool, responseLength string) (string, error) {
	return execute(refineTemplate, struct {
		Rules      []string
		NSFWBlock  string
		LengthHint string
	}{
		Rules:      tagRules(tags),
		NSFWBlock:  nsfwBlock(nsfw, tags),
		LengthHint: lengthHint(responseLength),
	})
}

// Structured builds the structured-content instruction for the given field
// labels. The output schema is rendered inline so every vendor produces the
// same parseable shape.
func Structured(labels []string, existing []types.CharacterField, tags []catalog.Tag, nsfw bool) (string, error) {
	schemaJSON, err := StructuredSchemaJSON()
	if err != nil {
		return "", err
	}
	return execute(structuredTemplate, struct {
		Labels     []string
		Existing   []types.CharacterField
		Rules      []string
		NSFWBlock  string
		SchemaJSON string
	}{
		Labels:     labels,
		Existing:   existing,
		Rules:      tagRules(tags),
		NSFWBlock:  nsfwBlock(nsfw, tags),
		SchemaJSON: schemaJSON,
	})
}

// ImagePrompt builds the instruction that turns a concept into a single
// image-generation prompt for the given subject.
func ImagePrompt(subject string, nsfw bool) (string, error) {
	return execute(imagePromptTemplate, struct {
		Subject   string
		NSFWBlock string
	}{
		Subject:   subject,
		NSFWBlock: nsfwBlock(nsfw, nil),
	})
}

// SystemRules builds the behavioral-contract instruction.
func SystemRules(tags []catalog.Tag, content string, nsfw bool) (string, error) {
	return execute(systemRulesTemplate, struct {
		Rules     []string
		NSFWBlock string
		Content   string
	}{
		Rules:     tagRules(tags),
		NSFWBlock: nsfwBlock(nsfw, tags),
		Content:   content,
	})
}

// Lore builds the lore-card extraction instruction.
func Lore() (string, error) {
	return execute(loreTemplate, struct {
		MaxCards int
	}{MaxCards: MaxLoreCards})
}

// ChatSystem builds the chat system prompt from a record's system rules.
func ChatSystem(systemRules, responseLength string) (string, error) {
	rules := strings.TrimSpace(systemRules)
	if rules == "" {
		rules = "You are playing an original character in a role-play chat."
	}
	return execute(chatSystemTemplate, struct {
		SystemRules string
		LengthHint  string
	}{
		SystemRules: rules,
		LengthHint:  lengthHint(responseLength),
	})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	return buf.String(), nil
}
