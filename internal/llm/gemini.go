package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

type gemini struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func newGemini(apiKey, model string) LLM {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &gemini{apiKey: apiKey, model: model}
}

// the client is built on first use and rebuilt on the next call if that fails
func (g *gemini) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	g.client = client
	return client, nil
}

func (g *gemini) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}

	contents := toGeminiContents(messages)

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	res, err := client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	return res.Text(), nil
}

func toGeminiContents(messages []Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}

		parts := make([]*genai.Part, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
		}
		if m.Content != "" {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}
		if len(parts) == 0 {
			continue
		}

		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	return contents
}

func (g *gemini) Capabilities() Capabilities {
	return Capabilities{Vision: true}
}
