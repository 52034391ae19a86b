package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"companion/internal/logger"
	"companion/internal/models"

	"google.golang.org/genai"
)

const (
	defaultTopP            = 0.9
	defaultMaxOutputTokens = 200
	defaultThinkingBudget  = 512
)

// GeminiGenerator opens a fresh chat session per request, seeded with the stored history.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(client *genai.Client, model string) (*GeminiGenerator, error) {
	if client == nil {
		return nil, errors.New("genai client required")
	}
	if model == "" {
		return nil, errors.New("model required")
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Reply(ctx context.Context, message string, history []models.HistoryEntry) (string, bool, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, chatConfig(), toGenaiHistory(history))
	if err != nil {
		return "", false, fmt.Errorf("create chat session: %w", err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", false, fmt.Errorf("send message: %w", err)
	}
	text, ok := replyText(resp)
	if !ok {
		logger.FromContext(ctx).Warn("gemini returned no text parts", "model", g.model)
	}
	return text, ok, nil
}

func chatConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemDirective, genai.RoleUser),
		TopP:              genai.Ptr[float32](defaultTopP),
		MaxOutputTokens:   defaultMaxOutputTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](defaultThinkingBudget),
		},
		Tools: []*genai.Tool{
			{URLContext: &genai.URLContext{}},
		},
	}
}

func toGenaiHistory(history []models.HistoryEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, entry := range history {
		role := genai.Role(genai.RoleUser)
		if entry.Role == models.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Content, role))
	}
	return contents
}

// replyText joins the non-thought text parts of the first candidate.
func replyText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return "", false
	}
	var (
		builder strings.Builder
		found   bool
	)
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		builder.WriteString(part.Text)
		found = true
	}
	return builder.String(), found
}
