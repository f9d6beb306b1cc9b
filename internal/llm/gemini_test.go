package llm

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiContentsMapRoles(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: ""},
		{Role: RoleUser, Content: "what is this?", Images: []ImageContent{{Data: []byte("png"), MimeType: "image/png"}}},
	})

	if len(contents) != 3 {
		t.Fatalf("empty message should be skipped, got %d contents", len(contents))
	}

	wantRoles := []string{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("content %d: role %q, want %q", i, c.Role, wantRoles[i])
		}
	}

	last := contents[2]
	if len(last.Parts) != 2 || last.Parts[0].InlineData == nil || last.Parts[1].Text != "what is this?" {
		t.Errorf("image then text expected, got %+v", last.Parts)
	}
}

func TestGeminiClientRetriesAfterFailure(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	g := newGemini("", "").(*gemini)

	if _, err := g.getClient(context.Background()); err == nil {
		t.Fatal("expected client construction to fail without an api key")
	}

	g.apiKey = "test-key"
	client, err := g.getClient(context.Background())
	if err != nil || client == nil {
		t.Fatalf("client should be rebuilt after a failure, got %v", err)
	}

	again, _ := g.getClient(context.Background())
	if again != client {
		t.Error("successful client should be reused")
	}
}
