package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"mira-agent/internal/domain"
)

const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
)

// Error is the classified failure surfaced by the client: a message, the
// service error code when one was reported, and the original cause.
type Error struct {
	Message   string
	ErrorCode string
	Cause     string
}

func (e *Error) Error() string {
	parts := []string{e.Message}
	if e.ErrorCode != "" {
		parts = append(parts, fmt.Sprintf("Code: %s", e.ErrorCode))
	}
	if e.Cause != "" {
		parts = append(parts, fmt.Sprintf("Details: %s", e.Cause))
	}
	return strings.Join(parts, " | ")
}

// bedrockAPI is the minimal Bedrock runtime interface required by Client.
type bedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// invokeRequest is the chat-style request body sent to the model.
type invokeRequest struct {
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
}

// invokeResponse is the minimal response shape returned by the model.
type invokeResponse struct {
	Choices []struct {
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Client generates astrological guidance through a Bedrock-hosted chat
// model. A single call failure is surfaced directly; there is no retry.
type Client struct {
	api     bedrockAPI
	modelID string
}

// New creates a Client for the given model.
func New(api bedrockAPI, modelID string) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("bedrock: model id must not be empty")
	}
	return &Client{api: api, modelID: modelID}, nil
}

// GenerateResponse builds the condensed prompt and invokes the model once.
func (c *Client) GenerateResponse(ctx context.Context, profile domain.UserProfile, chart domain.ChartData, question string) (domain.GeneratedAnswer, error) {
	messages := buildMessages(profile, chart, question)

	body, err := json.Marshal(invokeRequest{
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		return domain.GeneratedAnswer{}, &Error{Message: "failed to build AI prompt", Cause: err.Error()}
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return domain.GeneratedAnswer{}, &Error{
				Message:   "Bedrock API call failed",
				ErrorCode: apiErr.ErrorCode(),
				Cause:     apiErr.ErrorMessage(),
			}
		}
		return domain.GeneratedAnswer{}, &Error{Message: "unexpected error during AI generation", Cause: err.Error()}
	}

	var parsed invokeResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return domain.GeneratedAnswer{}, &Error{Message: "invalid response format from Bedrock", Cause: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return domain.GeneratedAnswer{}, &Error{Message: "invalid response format from Bedrock", Cause: "no choices in response"}
	}

	slog.Info("bedrock response received",
		"input_tokens", parsed.Usage.PromptTokens,
		"output_tokens", parsed.Usage.CompletionTokens,
	)

	return domain.GeneratedAnswer{
		Text: parsed.Choices[0].Message.Content,
		Usage: domain.TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
		Model: c.modelID,
	}, nil
}
