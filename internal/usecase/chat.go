package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"mira-agent/internal/domain"
	"mira-agent/internal/zodiac"
)

// ChartProvider is the cache-and-generate orchestrator consumed by the
// chat flow.
type ChartProvider interface {
	GetOrGenerate(ctx context.Context, profile domain.UserProfile) (ChartResult, error)
}

// ExchangeAppender records a completed exchange in the conversation ledger.
type ExchangeAppender interface {
	AppendExchange(ctx context.Context, userID, conversationID, userMessage, aiResponse, chartURL string) (string, error)
}

type ChatInput struct {
	UserID         string
	ConversationID string
	Message        string
}

type ChatOutput struct {
	ConversationID string
	Message        string
	ChartURL       string
}

// ChatService runs the full chat flow: profile load, chart orchestration,
// response generation, and best-effort ledger persistence.
type ChatService struct {
	profiles  ProfileStore
	charts    ChartProvider
	generator ResponseGenerator
	ledger    ExchangeAppender
}

// NewChatService creates a ChatService.
func NewChatService(profiles ProfileStore, charts ChartProvider, generator ResponseGenerator, ledger ExchangeAppender) (*ChatService, error) {
	if profiles == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	if charts == nil {
		return nil, errors.New("usecase: chart provider must not be nil")
	}
	if generator == nil {
		return nil, errors.New("usecase: response generator must not be nil")
	}
	if ledger == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	return &ChatService{profiles: profiles, charts: charts, generator: generator, ledger: ledger}, nil
}

// Chat answers one user message. Chart and generation failures abort the
// request; a ledger failure after a generated answer is logged and
// swallowed so the answer still reaches the user, with no conversation id.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "missing_message", nil)
	}

	profile, found, err := s.profiles.GetProfile(ctx, in.UserID)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "profile_error", err)
	}
	if !found {
		return ChatOutput{}, newError(ErrorNotFound, "profile_not_found", nil)
	}
	if profile.ZodiacSign == "" {
		// Older profiles predate the derived attribute.
		if sign, err := zodiac.SignForDate(profile.BirthDate); err == nil {
			profile.ZodiacSign = sign
		}
	}

	chart, err := s.charts.GetOrGenerate(ctx, profile)
	if err != nil {
		return ChatOutput{}, newError(ErrorUpstream, "chart_error", err)
	}

	answer, err := s.generator.GenerateResponse(ctx, profile, chart.Data, message)
	if err != nil {
		return ChatOutput{}, newError(ErrorUpstream, "ai_error", err)
	}

	conversationID, err := s.ledger.AppendExchange(ctx, in.UserID, in.ConversationID, message, answer.Text, chart.URL)
	if err != nil {
		slog.Error("failed to save conversation, returning answer without id", "user_id", in.UserID, "err", err)
		conversationID = ""
	}

	return ChatOutput{
		ConversationID: conversationID,
		Message:        answer.Text,
		ChartURL:       chart.URL,
	}, nil
}
