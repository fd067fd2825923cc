package utils

import "strings"

// Placeholder tokens preserved in stored text and resolved at read time.
const (
	PlaceholderChar = "{{char}}"
	PlaceholderUser = "{{user}}"
)

// ReplaceVars resolves the reserved placeholders against the given names.
// Stored text always keeps the placeholders; resolution happens on render.
func ReplaceVars(text, charName, userName string) string {
	if charName != "" {
		text = strings.ReplaceAll(text, PlaceholderChar, charName)
	}
	if userName != "" {
		text = strings.ReplaceAll(text, PlaceholderUser, userName)
	}
	return text
}

// NormalizePromptText cleans escaped whitespace artifacts from imported or
// model-produced text.
func NormalizePromptText(text string) string {
	text = strings.ReplaceAll(text, "\\r\\n", "\n")
	text = strings.ReplaceAll(text, "\\n", "\n")
	text = strings.ReplaceAll(text, "\\\"", "\"")
	return text
}
