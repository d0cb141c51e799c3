package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mira-agent/internal/domain"
	"mira-agent/internal/usecase"
)

// Request is the typed, already-authenticated event the lambda receives.
// UserID comes from the authorizer, never from the caller.
type Request struct {
	Action         string `json:"action"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message,omitempty"`
	Title          string `json:"title,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	NextToken      string `json:"next_token,omitempty"`
}

type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ChatUseCase answers a user message end to end.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

// ConversationUseCase manages the conversation ledger.
type ConversationUseCase interface {
	Create(ctx context.Context, userID, title string) (domain.ConversationThread, error)
	List(ctx context.Context, userID string, limit int, token string) (usecase.ThreadPage, error)
	Messages(ctx context.Context, userID, conversationID string, limit int, token string) (usecase.MessagePage, error)
	Delete(ctx context.Context, userID, conversationID string) error
	Rename(ctx context.Context, userID, conversationID, title string) error
}

type Handler struct {
	chat          ChatUseCase
	conversations ConversationUseCase
}

func NewHandler(chat ChatUseCase, conversations ConversationUseCase) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if conversations == nil {
		return nil, errors.New("handler: conversation use case must not be nil")
	}
	return &Handler{chat: chat, conversations: conversations}, nil
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	ChartURL       string `json:"chart_url,omitempty"`
}

type conversationResponse struct {
	ConversationID     string `json:"conversation_id"`
	Title              string `json:"title"`
	MessageCount       int    `json:"message_count"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
	LastMessagePreview string `json:"last_message_preview"`
}

type conversationListResponse struct {
	Conversations []conversationResponse `json:"conversations"`
	HasMore       bool                   `json:"has_more"`
	NextToken     string                 `json:"next_token,omitempty"`
}

type messageResponse struct {
	Timestamp   int64  `json:"timestamp"`
	CreatedAt   string `json:"created_at"`
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	ChartURL    string `json:"chart_url,omitempty"`
}

type messageListResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []messageResponse `json:"messages"`
	HasMore        bool              `json:"has_more"`
	NextToken      string            `json:"next_token,omitempty"`
}

type deleteResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	if req.UserID == "" {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "user_id is required"), nil
	}

	switch req.Action {
	case "chat":
		return h.handleChat(ctx, req), nil
	case "create_conversation":
		return h.handleCreate(ctx, req), nil
	case "list_conversations":
		return h.handleList(ctx, req), nil
	case "get_messages":
		return h.handleMessages(ctx, req), nil
	case "delete_conversation":
		return h.handleDelete(ctx, req), nil
	case "rename_conversation":
		return h.handleRename(ctx, req), nil
	default:
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "unknown action"), nil
	}
}

func (h *Handler) handleChat(ctx context.Context, req Request) Response {
	out, err := h.chat.Chat(ctx, usecase.ChatInput{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		return errorFromUseCase(err)
	}
	return okJSON(chatResponse{
		ConversationID: out.ConversationID,
		Message:        out.Message,
		ChartURL:       out.ChartURL,
	})
}

func (h *Handler) handleCreate(ctx context.Context, req Request) Response {
	thread, err := h.conversations.Create(ctx, req.UserID, req.Title)
	if err != nil {
		return errorFromUseCase(err)
	}
	return okJSON(threadToResponse(thread))
}

func (h *Handler) handleList(ctx context.Context, req Request) Response {
	page, err := h.conversations.List(ctx, req.UserID, req.Limit, req.NextToken)
	if err != nil {
		return errorFromUseCase(err)
	}

	out := conversationListResponse{
		Conversations: make([]conversationResponse, 0, len(page.Threads)),
		HasMore:       page.HasMore,
		NextToken:     page.NextToken,
	}
	for _, t := range page.Threads {
		out.Conversations = append(out.Conversations, threadToResponse(t))
	}
	return okJSON(out)
}

func (h *Handler) handleMessages(ctx context.Context, req Request) Response {
	page, err := h.conversations.Messages(ctx, req.UserID, req.ConversationID, req.Limit, req.NextToken)
	if err != nil {
		return errorFromUseCase(err)
	}

	out := messageListResponse{
		ConversationID: page.ConversationID,
		Messages:       make([]messageResponse, 0, len(page.Messages)),
		HasMore:        page.HasMore,
		NextToken:      page.NextToken,
	}
	for _, m := range page.Messages {
		out.Messages = append(out.Messages, messageResponse{
			Timestamp:   m.Timestamp,
			CreatedAt:   m.CreatedAt,
			UserMessage: m.UserMessage,
			AIResponse:  m.AIResponse,
			ChartURL:    m.ChartURL,
		})
	}
	return okJSON(out)
}

func (h *Handler) handleDelete(ctx context.Context, req Request) Response {
	if err := h.conversations.Delete(ctx, req.UserID, req.ConversationID); err != nil {
		return errorFromUseCase(err)
	}
	return okJSON(deleteResponse{
		Message:        "Conversation deleted successfully",
		ConversationID: req.ConversationID,
	})
}

func (h *Handler) handleRename(ctx context.Context, req Request) Response {
	if err := h.conversations.Rename(ctx, req.UserID, req.ConversationID, req.Title); err != nil {
		return errorFromUseCase(err)
	}
	return okJSON(map[string]string{
		"conversation_id": req.ConversationID,
		"title":           req.Title,
	})
}

func threadToResponse(t domain.ConversationThread) conversationResponse {
	return conversationResponse{
		ConversationID:     t.ConversationID,
		Title:              t.Title,
		MessageCount:       t.MessageCount,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		LastMessagePreview: t.LastMessagePreview,
	}
}

func errorFromUseCase(err error) Response {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		return errorJSON(statusFor(ucErr.Code), string(ucErr.Code), ucErr.Reason)
	}
	slog.Error("unclassified handler error", "err", err)
	return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "internal error")
}

// statusFor follows the service's public contract: bad input is 400, a
// missing resource is 404, everything else surfaces as 500.
func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func okJSON(v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response body", "err", err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "internal error")
	}
	return Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(body),
	}
}

func errorJSON(status int, code, message string) Response {
	body, _ := json.Marshal(errorResponse{Error: errorBody{Code: code, Message: message}})
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(body),
	}
}
