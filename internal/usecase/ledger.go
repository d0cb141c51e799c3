package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"mira-agent/internal/domain"
	"mira-agent/internal/repository"
)

const (
	defaultThreadLimit  = 20
	maxThreadLimit      = 100
	defaultMessageLimit = 50
	maxMessageLimit     = 200

	previewMaxLen = 100
)

// ConversationStore is the storage layer behind the ledger.
type ConversationStore interface {
	GetThread(ctx context.Context, userID, conversationID string) (domain.ConversationThread, bool, error)
	PutThread(ctx context.Context, thread domain.ConversationThread) error
	PutMessage(ctx context.Context, msg domain.Message) error
	TouchThread(ctx context.Context, userID, conversationID, preview string, now time.Time) error
	ListThreads(ctx context.Context, userID string, startKey *repository.PageKey) ([]domain.ConversationThread, *repository.PageKey, error)
	ListMessages(ctx context.Context, userID, conversationID string, limit int32, startKey *repository.PageKey) ([]domain.Message, *repository.PageKey, error)
	SoftDeleteThread(ctx context.Context, userID, conversationID string, now time.Time) error
	RenameThread(ctx context.Context, userID, conversationID, title string, now time.Time) error
}

// ThreadPage is one page of thread listings, most recently updated first.
type ThreadPage struct {
	Threads   []domain.ConversationThread
	NextToken string
	HasMore   bool
}

// MessagePage is one page of a thread's messages in chronological order.
type MessagePage struct {
	ConversationID string
	Messages       []domain.Message
	NextToken      string
	HasMore        bool
}

// ConversationService is the conversation ledger: an append-only,
// thread-structured store with cursor pagination and soft deletion.
type ConversationService struct {
	store  ConversationStore
	titles *TitleSynthesizer
	now    func() time.Time
}

// NewConversationService creates a ConversationService.
func NewConversationService(store ConversationStore, titles *TitleSynthesizer) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if titles == nil {
		return nil, errors.New("usecase: title synthesizer must not be nil")
	}
	return &ConversationService{store: store, titles: titles, now: time.Now}, nil
}

// Create explicitly creates an empty thread with an optional caller title.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (domain.ConversationThread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	if len([]rune(title)) > titleMaxLen {
		return domain.ConversationThread{}, newError(ErrorInvalidInput, "title_too_long", nil)
	}

	thread := repository.NewThread(userID, newUUID(), title, s.now())
	if err := s.store.PutThread(ctx, thread); err != nil {
		return domain.ConversationThread{}, newError(ErrorInternal, "conversation_create_error", err)
	}
	return thread, nil
}

// AppendExchange records one user/assistant exchange, creating the thread
// with a synthesized title when no id is supplied. Appends to a missing or
// deleted thread fail with a not-found error. Side effects on the thread
// metadata are applied after the message itself is written.
func (s *ConversationService) AppendExchange(ctx context.Context, userID, conversationID, userMessage, aiResponse, chartURL string) (string, error) {
	if conversationID == "" {
		conversationID = newUUID()
		title := s.titles.Synthesize(ctx, userMessage)
		thread := repository.NewThread(userID, conversationID, title, s.now())
		if err := s.store.PutThread(ctx, thread); err != nil {
			return "", newError(ErrorInternal, "conversation_create_error", err)
		}
	} else {
		thread, found, err := s.store.GetThread(ctx, userID, conversationID)
		if err != nil {
			return "", newError(ErrorInternal, "conversation_read_error", err)
		}
		if !found || thread.Deleted {
			return "", newError(ErrorNotFound, "conversation_not_found", nil)
		}
	}

	msg := repository.NewMessage(userID, conversationID, userMessage, aiResponse, chartURL, s.now())
	if err := s.store.PutMessage(ctx, msg); err != nil {
		return "", newError(ErrorInternal, "message_write_error", err)
	}

	if err := s.store.TouchThread(ctx, userID, conversationID, truncateRunes(userMessage, previewMaxLen), s.now()); err != nil {
		if errors.Is(err, repository.ErrThreadNotFound) {
			return "", newError(ErrorNotFound, "conversation_not_found", err)
		}
		return "", newError(ErrorInternal, "metadata_update_error", err)
	}
	return conversationID, nil
}

// List returns the user's non-deleted threads sorted by updated_at
// descending, truncated to the page size. Sorting precedes truncation
// because the store's sort key does not correlate with recency.
func (s *ConversationService) List(ctx context.Context, userID string, limit int, token string) (ThreadPage, error) {
	limit = clampLimit(limit, defaultThreadLimit, maxThreadLimit)

	threads, next, err := s.store.ListThreads(ctx, userID, repository.DecodePageToken(token))
	if err != nil {
		return ThreadPage{}, newError(ErrorInternal, "conversation_list_error", err)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].UpdatedAt > threads[j].UpdatedAt
	})
	if len(threads) > limit {
		threads = threads[:limit]
	}

	return ThreadPage{
		Threads:   threads,
		NextToken: repository.EncodePageToken(next),
		HasMore:   next != nil,
	}, nil
}

// Messages returns one chronological page of a thread's messages. The
// thread must exist and not be deleted; its stored messages are otherwise
// untouched by deletion.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string, limit int, token string) (MessagePage, error) {
	if conversationID == "" {
		return MessagePage{}, newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	limit = clampLimit(limit, defaultMessageLimit, maxMessageLimit)

	thread, found, err := s.store.GetThread(ctx, userID, conversationID)
	if err != nil {
		return MessagePage{}, newError(ErrorInternal, "conversation_read_error", err)
	}
	if !found || thread.Deleted {
		return MessagePage{}, newError(ErrorNotFound, "conversation_not_found", nil)
	}

	msgs, next, err := s.store.ListMessages(ctx, userID, conversationID, int32(limit), repository.DecodePageToken(token))
	if err != nil {
		return MessagePage{}, newError(ErrorInternal, "message_list_error", err)
	}

	return MessagePage{
		ConversationID: conversationID,
		Messages:       msgs,
		NextToken:      repository.EncodePageToken(next),
		HasMore:        next != nil,
	}, nil
}

// Delete soft-deletes a thread; its messages remain stored.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if conversationID == "" {
		return newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	if err := s.store.SoftDeleteThread(ctx, userID, conversationID, s.now()); err != nil {
		if errors.Is(err, repository.ErrThreadNotFound) {
			return newError(ErrorNotFound, "conversation_not_found", err)
		}
		return newError(ErrorInternal, "conversation_delete_error", err)
	}
	return nil
}

// Rename retitles an existing, non-deleted thread.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) error {
	if conversationID == "" {
		return newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return newError(ErrorInvalidInput, "missing_title", nil)
	}
	if len([]rune(title)) > titleMaxLen {
		return newError(ErrorInvalidInput, "title_too_long", nil)
	}
	if err := s.store.RenameThread(ctx, userID, conversationID, title, s.now()); err != nil {
		if errors.Is(err, repository.ErrThreadNotFound) {
			return newError(ErrorNotFound, "conversation_not_found", err)
		}
		return newError(ErrorInternal, "conversation_rename_error", err)
	}
	return nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var newUUID = func() string {
	return uuid.NewString()
}
