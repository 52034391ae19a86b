package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"companion/internal/logger"
	"companion/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const claudeMaxTokens = 3000

// EinoConfig selects the provider behind an EinoGenerator.
type EinoConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// GenaiClient is reused for the gemini provider when set.
	GenaiClient *genai.Client
	Tools       []tool.BaseTool
}

// EinoGenerator runs the conversation through an eino chat model, or a ReAct agent when tools are present.
type EinoGenerator struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

func NewEinoGenerator(ctx context.Context, cfg EinoConfig) (*EinoGenerator, error) {
	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newEinoGenerator(ctx, chatModel, cfg.Tools)
}

func newEinoGenerator(ctx context.Context, chatModel model.ToolCallingChatModel, tools []tool.BaseTool) (*EinoGenerator, error) {
	if chatModel == nil {
		return nil, errors.New("chat model required")
	}
	g := &EinoGenerator{chatModel: chatModel}
	if len(tools) > 0 {
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		g.agent = agent
	}
	return g, nil
}

func newChatModel(ctx context.Context, cfg EinoConfig) (model.ToolCallingChatModel, error) {
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		client := cfg.GenaiClient
		if client == nil {
			client, err = genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  cfg.APIKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, fmt.Errorf("create genai client: %w", err)
			}
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
			ThinkingConfig: &genai.ThinkingConfig{
				ThinkingBudget: genai.Ptr[int32](defaultThinkingBudget),
			},
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return chatModel, nil
}

func (g *EinoGenerator) Reply(ctx context.Context, message string, history []models.HistoryEntry) (string, bool, error) {
	input := toEinoMessages(message, history)

	var (
		out *schema.Message
		err error
	)
	if g.agent != nil {
		out, err = g.agent.Generate(ctx, input)
	} else {
		out, err = g.chatModel.Generate(ctx, input)
	}
	if err != nil {
		return "", false, fmt.Errorf("generate reply: %w", err)
	}
	if out == nil || out.Content == "" {
		logger.FromContext(ctx).Warn("chat model returned empty content")
		return "", false, nil
	}
	return out.Content, true, nil
}

func toEinoMessages(message string, history []models.HistoryEntry) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(SystemDirective))
	for _, entry := range history {
		switch entry.Role {
		case models.RoleModel:
			messages = append(messages, schema.AssistantMessage(entry.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(entry.Content))
		}
	}
	return append(messages, schema.UserMessage(message))
}
