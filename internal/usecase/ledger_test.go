package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mira-agent/internal/domain"
	"mira-agent/internal/repository"
)

var ledgerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeConversationStore struct {
	thread      domain.ConversationThread
	threadFound bool
	getErr      error

	putThreadErr  error
	putThreads    []domain.ConversationThread
	putMessageErr error
	putMessages   []domain.Message

	touchErr     error
	touchPreview string
	touchCalls   int

	listThreads   []domain.ConversationThread
	listNext      *repository.PageKey
	listErr       error
	listStartKey  *repository.PageKey
	listMsgs      []domain.Message
	listMsgsNext  *repository.PageKey
	listMsgsErr   error
	listMsgsLimit int32
	listMsgsStart *repository.PageKey
	softDeleteErr error
	softDeleteID  string
	renameErr     error
	renamedTitle  string
}

func (f *fakeConversationStore) GetThread(_ context.Context, _, _ string) (domain.ConversationThread, bool, error) {
	return f.thread, f.threadFound, f.getErr
}

func (f *fakeConversationStore) PutThread(_ context.Context, thread domain.ConversationThread) error {
	f.putThreads = append(f.putThreads, thread)
	return f.putThreadErr
}

func (f *fakeConversationStore) PutMessage(_ context.Context, msg domain.Message) error {
	f.putMessages = append(f.putMessages, msg)
	return f.putMessageErr
}

func (f *fakeConversationStore) TouchThread(_ context.Context, _, _, preview string, _ time.Time) error {
	f.touchCalls++
	f.touchPreview = preview
	return f.touchErr
}

func (f *fakeConversationStore) ListThreads(_ context.Context, _ string, startKey *repository.PageKey) ([]domain.ConversationThread, *repository.PageKey, error) {
	f.listStartKey = startKey
	return f.listThreads, f.listNext, f.listErr
}

func (f *fakeConversationStore) ListMessages(_ context.Context, _, _ string, limit int32, startKey *repository.PageKey) ([]domain.Message, *repository.PageKey, error) {
	f.listMsgsLimit = limit
	f.listMsgsStart = startKey
	return f.listMsgs, f.listMsgsNext, f.listMsgsErr
}

func (f *fakeConversationStore) SoftDeleteThread(_ context.Context, _, conversationID string, _ time.Time) error {
	f.softDeleteID = conversationID
	return f.softDeleteErr
}

func (f *fakeConversationStore) RenameThread(_ context.Context, _, _, title string, _ time.Time) error {
	f.renamedTitle = title
	return f.renameErr
}

func mustNewConversationService(t *testing.T, store *fakeConversationStore, gen *fakeResponseGenerator) *ConversationService {
	t.Helper()
	titles := mustNewSynthesizer(t, gen)
	s, err := NewConversationService(store, titles)
	require.NoError(t, err)
	s.now = func() time.Time { return ledgerNow }
	return s
}

func withFixedUUID(t *testing.T, id string) {
	t.Helper()
	orig := newUUID
	newUUID = func() string { return id }
	t.Cleanup(func() { newUUID = orig })
}

func requireUseCaseError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, code, ucErr.Code)
	require.Equal(t, reason, ucErr.Reason)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_DefaultTitle(t *testing.T) {
	withFixedUUID(t, "conv-new")
	store := &fakeConversationStore{}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	thread, err := s.Create(context.Background(), "user-1", "  ")
	require.NoError(t, err)
	require.Equal(t, "New Conversation", thread.Title)
	require.Equal(t, "conv-new", thread.ConversationID)
	require.Len(t, store.putThreads, 1)
}

func TestCreate_CustomTitle(t *testing.T) {
	withFixedUUID(t, "conv-new")
	store := &fakeConversationStore{}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	thread, err := s.Create(context.Background(), "user-1", " My Stars ")
	require.NoError(t, err)
	require.Equal(t, "My Stars", thread.Title)
}

func TestCreate_TitleTooLong(t *testing.T) {
	store := &fakeConversationStore{}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.Create(context.Background(), "user-1", strings.Repeat("x", 101))
	requireUseCaseError(t, err, ErrorInvalidInput, "title_too_long")
	require.Empty(t, store.putThreads)
}

func TestCreate_StoreError(t *testing.T) {
	withFixedUUID(t, "conv-new")
	store := &fakeConversationStore{putThreadErr: errors.New("throttled")}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.Create(context.Background(), "user-1", "")
	requireUseCaseError(t, err, ErrorInternal, "conversation_create_error")
}

// ---------------------------------------------------------------------------
// AppendExchange
// ---------------------------------------------------------------------------

func TestAppendExchange_NewThreadSynthesizesTitle(t *testing.T) {
	withFixedUUID(t, "conv-new")
	store := &fakeConversationStore{}
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{Text: "Mars Career Guidance"}}
	s := mustNewConversationService(t, store, gen)

	id, err := s.AppendExchange(context.Background(), "user-1", "", "What about Mars?", "Mars rules drive.", "https://example/chart.svg")
	require.NoError(t, err)
	require.Equal(t, "conv-new", id)

	require.Len(t, store.putThreads, 1)
	require.Equal(t, "Mars Career Guidance", store.putThreads[0].Title)
	require.Len(t, store.putMessages, 1)
	require.Equal(t, "What about Mars?", store.putMessages[0].UserMessage)
	require.Equal(t, "Mars rules drive.", store.putMessages[0].AIResponse)
	require.Equal(t, "https://example/chart.svg", store.putMessages[0].ChartURL)
	require.Equal(t, 1, store.touchCalls)
	require.Equal(t, "What about Mars?", store.touchPreview)
}

func TestAppendExchange_ExistingThreadSkipsCreation(t *testing.T) {
	store := &fakeConversationStore{
		thread:      domain.ConversationThread{UserID: "user-1", ConversationID: "conv-1"},
		threadFound: true,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	id, err := s.AppendExchange(context.Background(), "user-1", "conv-1", "hi", "hello", "")
	require.NoError(t, err)
	require.Equal(t, "conv-1", id)
	require.Empty(t, store.putThreads)
	require.Len(t, store.putMessages, 1)
}

func TestAppendExchange_MissingThread(t *testing.T) {
	store := &fakeConversationStore{threadFound: false}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.AppendExchange(context.Background(), "user-1", "missing", "hi", "hello", "")
	requireUseCaseError(t, err, ErrorNotFound, "conversation_not_found")
	require.Empty(t, store.putMessages)
}

func TestAppendExchange_DeletedThread(t *testing.T) {
	store := &fakeConversationStore{
		thread:      domain.ConversationThread{ConversationID: "conv-1", Deleted: true},
		threadFound: true,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.AppendExchange(context.Background(), "user-1", "conv-1", "hi", "hello", "")
	requireUseCaseError(t, err, ErrorNotFound, "conversation_not_found")
}

func TestAppendExchange_GetThreadError(t *testing.T) {
	store := &fakeConversationStore{getErr: errors.New("boom")}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.AppendExchange(context.Background(), "user-1", "conv-1", "hi", "hello", "")
	requireUseCaseError(t, err, ErrorInternal, "conversation_read_error")
}

func TestAppendExchange_MessageWriteError(t *testing.T) {
	store := &fakeConversationStore{
		thread:        domain.ConversationThread{ConversationID: "conv-1"},
		threadFound:   true,
		putMessageErr: errors.New("throttled"),
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.AppendExchange(context.Background(), "user-1", "conv-1", "hi", "hello", "")
	requireUseCaseError(t, err, ErrorInternal, "message_write_error")
	require.Zero(t, store.touchCalls)
}

func TestAppendExchange_TouchNotFoundMapsToNotFound(t *testing.T) {
	store := &fakeConversationStore{
		thread:      domain.ConversationThread{ConversationID: "conv-1"},
		threadFound: true,
		touchErr:    repository.ErrThreadNotFound,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.AppendExchange(context.Background(), "user-1", "conv-1", "hi", "hello", "")
	requireUseCaseError(t, err, ErrorNotFound, "conversation_not_found")
}

func TestAppendExchange_TruncatesPreviewToHundredRunes(t *testing.T) {
	store := &fakeConversationStore{
		thread:      domain.ConversationThread{ConversationID: "conv-1"},
		threadFound: true,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	long := strings.Repeat("é", 150)
	_, err := s.AppendExchange(context.Background(), "user-1", "conv-1", long, "hello", "")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 100), store.touchPreview)
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestList_SortsByUpdatedAtDescendingThenTruncates(t *testing.T) {
	store := &fakeConversationStore{listThreads: []domain.ConversationThread{
		{ConversationID: "old", UpdatedAt: "2026-01-01T00:00:00Z"},
		{ConversationID: "newest", UpdatedAt: "2026-03-01T00:00:00Z"},
		{ConversationID: "mid", UpdatedAt: "2026-02-01T00:00:00Z"},
	}}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	page, err := s.List(context.Background(), "user-1", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Threads, 2)
	require.Equal(t, "newest", page.Threads[0].ConversationID)
	require.Equal(t, "mid", page.Threads[1].ConversationID)
	require.False(t, page.HasMore)
	require.Empty(t, page.NextToken)
}

func TestList_PropagatesPageToken(t *testing.T) {
	next := &repository.PageKey{UserID: "user-1", SK: "CONV#conv-9"}
	store := &fakeConversationStore{listNext: next}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	start := &repository.PageKey{UserID: "user-1", SK: "CONV#conv-5"}
	page, err := s.List(context.Background(), "user-1", 0, repository.EncodePageToken(start))
	require.NoError(t, err)
	require.Equal(t, start, store.listStartKey)
	require.True(t, page.HasMore)
	require.Equal(t, next, repository.DecodePageToken(page.NextToken))
}

func TestList_MalformedTokenRestartsFromBeginning(t *testing.T) {
	store := &fakeConversationStore{}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.List(context.Background(), "user-1", 0, "%%%garbage%%%")
	require.NoError(t, err)
	require.Nil(t, store.listStartKey)
}

func TestList_StoreError(t *testing.T) {
	store := &fakeConversationStore{listErr: errors.New("boom")}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.List(context.Background(), "user-1", 0, "")
	requireUseCaseError(t, err, ErrorInternal, "conversation_list_error")
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func TestMessages_MissingConversationID(t *testing.T) {
	s := mustNewConversationService(t, &fakeConversationStore{}, &fakeResponseGenerator{})

	_, err := s.Messages(context.Background(), "user-1", "", 0, "")
	requireUseCaseError(t, err, ErrorInvalidInput, "missing_conversation_id")
}

func TestMessages_DefaultAndMaxLimits(t *testing.T) {
	store := &fakeConversationStore{
		thread:      domain.ConversationThread{ConversationID: "conv-1"},
		threadFound: true,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.Messages(context.Background(), "user-1", "conv-1", 0, "")
	require.NoError(t, err)
	require.Equal(t, int32(50), store.listMsgsLimit)

	_, err = s.Messages(context.Background(), "user-1", "conv-1", 500, "")
	require.NoError(t, err)
	require.Equal(t, int32(200), store.listMsgsLimit)
}

func TestMessages_DeletedThread(t *testing.T) {
	store := &fakeConversationStore{
		thread:      domain.ConversationThread{ConversationID: "conv-1", Deleted: true},
		threadFound: true,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	_, err := s.Messages(context.Background(), "user-1", "conv-1", 0, "")
	requireUseCaseError(t, err, ErrorNotFound, "conversation_not_found")
}

func TestMessages_HappyPath(t *testing.T) {
	next := &repository.PageKey{UserID: "user-1", SK: "CONV#conv-1#MSG#1700000000"}
	store := &fakeConversationStore{
		thread:       domain.ConversationThread{ConversationID: "conv-1"},
		threadFound:  true,
		listMsgs:     []domain.Message{{UserMessage: "hi", AIResponse: "hello"}},
		listMsgsNext: next,
	}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	page, err := s.Messages(context.Background(), "user-1", "conv-1", 0, "")
	require.NoError(t, err)
	require.Equal(t, "conv-1", page.ConversationID)
	require.Len(t, page.Messages, 1)
	require.True(t, page.HasMore)
	require.Equal(t, next, repository.DecodePageToken(page.NextToken))
}

// ---------------------------------------------------------------------------
// Delete / Rename
// ---------------------------------------------------------------------------

func TestDelete_HappyPath(t *testing.T) {
	store := &fakeConversationStore{}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	require.NoError(t, s.Delete(context.Background(), "user-1", "conv-1"))
	require.Equal(t, "conv-1", store.softDeleteID)
}

func TestDelete_MissingID(t *testing.T) {
	s := mustNewConversationService(t, &fakeConversationStore{}, &fakeResponseGenerator{})

	err := s.Delete(context.Background(), "user-1", "")
	requireUseCaseError(t, err, ErrorInvalidInput, "missing_conversation_id")
}

func TestDelete_NotFound(t *testing.T) {
	store := &fakeConversationStore{softDeleteErr: repository.ErrThreadNotFound}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	err := s.Delete(context.Background(), "user-1", "missing")
	requireUseCaseError(t, err, ErrorNotFound, "conversation_not_found")
}

func TestRename_HappyPath(t *testing.T) {
	store := &fakeConversationStore{}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	require.NoError(t, s.Rename(context.Background(), "user-1", "conv-1", " Better Title "))
	require.Equal(t, "Better Title", store.renamedTitle)
}

func TestRename_Validation(t *testing.T) {
	s := mustNewConversationService(t, &fakeConversationStore{}, &fakeResponseGenerator{})

	err := s.Rename(context.Background(), "user-1", "", "x")
	requireUseCaseError(t, err, ErrorInvalidInput, "missing_conversation_id")

	err = s.Rename(context.Background(), "user-1", "conv-1", "  ")
	requireUseCaseError(t, err, ErrorInvalidInput, "missing_title")

	err = s.Rename(context.Background(), "user-1", "conv-1", strings.Repeat("x", 101))
	requireUseCaseError(t, err, ErrorInvalidInput, "title_too_long")
}

func TestRename_NotFound(t *testing.T) {
	store := &fakeConversationStore{renameErr: repository.ErrThreadNotFound}
	s := mustNewConversationService(t, store, &fakeResponseGenerator{})

	err := s.Rename(context.Background(), "user-1", "conv-1", "Better Title")
	requireUseCaseError(t, err, ErrorNotFound, "conversation_not_found")
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, 20, clampLimit(0, 20, 100))
	require.Equal(t, 20, clampLimit(-5, 20, 100))
	require.Equal(t, 100, clampLimit(250, 20, 100))
	require.Equal(t, 7, clampLimit(7, 20, 100))
}
