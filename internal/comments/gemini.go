package comments

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

const promptTemplate = `You are the audience of a short-video livestream (Douyin/TikTok style).
The host just said or did this: %q.

Write 5-8 short, natural, quick chat reactions to the host.
Rules:
1. Casual Chinese internet slang.
2. Include emojis.
3. Vary the tone: some praise, some questions, some just hype like "666" or "哈哈".
4. If the host greets people reply "主播好"; if the host asks for likes reply "已赞".

Return only a JSON array of strings without Markdown.`

// Gemini generates comments with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, apiKey, model string, log *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, log: log}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) ([]string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(fmt.Sprintf(promptTemplate, prompt)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate comments: %w", err)
	}
	lines, err := Parse(resp.Text())
	if err != nil {
		return nil, err
	}
	g.log.Debug("comments generated", zap.String("model", g.model), zap.Int("lines", len(lines)))
	return lines, nil
}
