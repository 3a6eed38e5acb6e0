package classifier

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/reviewsight/reviewsight/internal/config"
)

// ChatGenerator calls an OpenAI-compatible chat model under a shared rate limit.
type ChatGenerator struct {
	cm      model.BaseChatModel
	limiter *rate.Limiter
}

func NewChatGenerator(ctx context.Context, cfg config.LLMConfig) (*ChatGenerator, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	limit := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return NewChatGeneratorWithModel(chatModel, rate.NewLimiter(limit, cfg.Burst)), nil
}

func NewChatGeneratorWithModel(cm model.BaseChatModel, limiter *rate.Limiter) *ChatGenerator {
	return &ChatGenerator{cm: cm, limiter: limiter}
}

func (g *ChatGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: p.System},
		{Role: schema.User, Content: p.User},
	}

	resp, err := g.cm.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
