package models

import (
	"testing"

	"google.golang.org/genai"

	"github.com/easeaico/persona-studio/internal/types"
)

func TestChatContentsKeepsRoles(t *testing.T) {
	contents := chatContents([]types.ChatMessage{
		{Role: types.RoleModel, Content: "*She looks up from the counter.*"},
		{Role: types.RoleUser, Content: "Hey, got a minute?"},
		{Role: types.RoleModel, Content: "For you, always."},
	})
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	wantRoles := []genai.Role{genai.RoleModel, genai.RoleUser, genai.RoleModel}
	for i, content := range contents {
		if genai.Role(content.Role) != wantRoles[i] {
			t.Fatalf("content %d: expected role %q, got %q", i, wantRoles[i], content.Role)
		}
		if len(content.Parts) != 1 || content.Parts[0].Text == "" {
			t.Fatalf("content %d: expected a single text part", i)
		}
	}
}

func TestChatContentsEmptyTranscript(t *testing.T) {
	contents := chatContents(nil)
	if len(contents) != 0 {
		t.Fatalf("expected no contents, got %d", len(contents))
	}
}
