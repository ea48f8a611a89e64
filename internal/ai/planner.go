package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the model produces no content
var ErrEmptyResponse = errors.New("model returned empty response")

// Planner generates day plans and attachment descriptions through the
// language model. Prompt construction lives here; the quota decisions that
// gate these calls live with the handlers.
type Planner struct {
	client *Client
	model  string
}

// NewPlanner creates a new planner service
func NewPlanner(client *Client, model string) *Planner {
	return &Planner{client: client, model: model}
}

// GeneratePlan builds a plan from the submitted profile plus recent chat
// context and returns the raw model output.
func (p *Planner) GeneratePlan(ctx context.Context, profile string, history []PromptMessage) (string, error) {
	prompt, err := RenderPlanPrompt(PlanPromptData{Profile: profile, History: history})
	if err != nil {
		return "", fmt.Errorf("render plan prompt: %w", err)
	}

	resp, err := p.client.Chat(ctx, &ChatRequest{
		Model:     p.model,
		Messages:  []ChatMessage{TextMessage("user", prompt)},
		MaxTokens: 2048,
	})
	if err != nil {
		return "", err
	}

	content := resp.GetMessageContent()
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// DescribeAttachment sends an uploaded image to the model and returns the
// extracted description.
func (p *Planner) DescribeAttachment(ctx context.Context, mimeType string, data []byte) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	resp, err := p.client.Chat(ctx, &ChatRequest{
		Model:     p.model,
		Messages:  []ChatMessage{ImageMessage("user", AttachmentPrompt, dataURL)},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}

	content := resp.GetMessageContent()
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
