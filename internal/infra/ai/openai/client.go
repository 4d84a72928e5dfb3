package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/rules"
	"github.com/vastulab/vastu-backend/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Client is the ML-backed Scorer. It satisfies the same contract as the
// rule-based scorer, so the lifecycle never knows which one ran.
type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) Score(ctx context.Context, plan domain.FloorPlan, catalog []*rules.Rule) (*domain.Result, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(plan, catalog)},
		},
	}
	// reasoning models take MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	var res domain.Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &res); err != nil {
		return nil, fmt.Errorf("decoding model output: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("model output rejected: %w", err)
	}
	return &res, nil
}
