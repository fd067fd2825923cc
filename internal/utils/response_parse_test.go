package utils

import "testing"

func TestParseStructuredOutput(t *testing.T) {
	got, err := ParseStructuredOutput(`{"name":"Maren","fields":[{"label":"Personality","value":" stoic "}]}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Name != "Maren" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
	if len(got.Fields) != 1 || got.Fields[0].Value != "stoic" {
		t.Fatalf("unexpected fields: %+v", got.Fields)
	}
}

func TestParseStructuredOutputWithWrapper(t *testing.T) {
	raw := "Here is the character:\n```json\n{\"name\":\"Maren\",\"fields\":[]}\n```"
	got, err := ParseStructuredOutput(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Name != "Maren" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
}

func TestParseStructuredOutputMissingName(t *testing.T) {
	if _, err := ParseStructuredOutput(`{"name":"  ","fields":[]}`); err == nil {
		t.Fatalf("expected error for missing name")
	}
}

func TestParseLoreOutput(t *testing.T) {
	cards := ParseLoreOutput(`{"cards":[{"label":"The Light","content":"Never goes out."},{"label":"","content":"dropped"}]}`)
	if len(cards) != 1 {
		t.Fatalf("expected one valid card, got %d", len(cards))
	}
	if cards[0].Label != "The Light" {
		t.Fatalf("unexpected label: %s", cards[0].Label)
	}
}

func TestParseLoreOutputUnparseable(t *testing.T) {
	if cards := ParseLoreOutput("no json here"); len(cards) != 0 {
		t.Fatalf("expected empty list, got %v", cards)
	}
}

func TestReplaceVars(t *testing.T) {
	got := ReplaceVars("*{{char}} waves at {{user}}.*", "Maren", "Riley")
	if got != "*Maren waves at Riley.*" {
		t.Fatalf("unexpected result: %s", got)
	}
}

func TestReplaceVarsKeepsUnresolved(t *testing.T) {
	got := ReplaceVars("{{char}} and {{user}}", "Maren", "")
	if got != "Maren and {{user}}" {
		t.Fatalf("empty name must keep the placeholder, got %s", got)
	}
}

func TestNormalizePromptText(t *testing.T) {
	got := NormalizePromptText(`line one\nline \"two\"`)
	if got != "line one\nline \"two\"" {
		t.Fatalf("unexpected result: %q", got)
	}
}
