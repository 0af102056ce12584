package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/testprep/internal/exam"
	"github.com/pavelanni/testprep/internal/llm/prompts"
	"github.com/pavelanni/testprep/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Suggestion is the model's proposed grade for an essay answer.
type Suggestion struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client and suggests essay grades.
type Client struct {
	api           *openai.Client
	model         string
	variant       prompts.PromptVariant
	prompts       *prompts.Set
	passThreshold float64
}

var _ exam.Advisor = (*Client)(nil)

// New creates a new LLM client using the given grading prompt variant.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	set, err := prompts.Load(prompts.Templates)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:           openai.NewClientWithConfig(config),
		model:         modelName,
		variant:       prompts.PromptVariant(variant),
		prompts:       set,
		passThreshold: exam.DefaultPassThreshold,
	}, nil
}

// WithPassThreshold sets the threshold quoted in grading prompts.
func (c *Client) WithPassThreshold(t float64) *Client {
	if t > 0 {
		c.passThreshold = t
	}
	return c
}

// Ping checks that the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// SuggestGrade asks the model to grade an essay answer. The returned score
// is what the model said; callers clamp it.
func (c *Client) SuggestGrade(ctx context.Context, q model.Question, answer string) (float64, string, error) {
	prompt, err := c.prompts.BuildGradePrompt(c.variant, q, answer, c.passThreshold)
	if err != nil {
		return 0, "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return 0, "", fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, "", fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM grade suggestion", "question_id", q.ID, "raw", raw)

	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return 0, "", fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	return s.Score, s.Feedback, nil
}
