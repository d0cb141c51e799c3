package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mira-agent/internal/domain"
)

type fakeResponseGenerator struct {
	answer       domain.GeneratedAnswer
	err          error
	calls        int
	lastQuestion string
}

func (f *fakeResponseGenerator) GenerateResponse(_ context.Context, _ domain.UserProfile, _ domain.ChartData, question string) (domain.GeneratedAnswer, error) {
	f.calls++
	f.lastQuestion = question
	return f.answer, f.err
}

func mustNewSynthesizer(t *testing.T, gen *fakeResponseGenerator) *TitleSynthesizer {
	t.Helper()
	s, err := NewTitleSynthesizer(gen)
	require.NoError(t, err)
	return s
}

func TestNewTitleSynthesizer_NilGenerator(t *testing.T) {
	_, err := NewTitleSynthesizer(nil)
	require.Error(t, err)
}

func TestSynthesize_EmptyMessage(t *testing.T) {
	gen := &fakeResponseGenerator{}
	s := mustNewSynthesizer(t, gen)

	require.Equal(t, "New Conversation", s.Synthesize(context.Background(), "  "))
	require.Zero(t, gen.calls, "empty input must not call the model")
}

func TestSynthesize_GeneratedTitle(t *testing.T) {
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{Text: "Mars Energy Guidance"}}
	s := mustNewSynthesizer(t, gen)

	title := s.Synthesize(context.Background(), "What does Mars in my chart mean for my career?")
	require.Equal(t, "Mars Energy Guidance", title)
	require.Equal(t, 1, gen.calls)
	require.Contains(t, gen.lastQuestion, "3-5 word title")
	require.Contains(t, gen.lastQuestion, "What does Mars in my chart mean for my career?")
}

func TestSynthesize_StripsReasoningBlock(t *testing.T) {
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{
		Text: "<reasoning>\nthe user asks about mars\n</reasoning>\nMars Career Questions",
	}}
	s := mustNewSynthesizer(t, gen)

	require.Equal(t, "Mars Career Questions", s.Synthesize(context.Background(), "What about Mars?"))
}

func TestSynthesize_StripsOrphanedTags(t *testing.T) {
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{
		Text: "thinking about it</reasoning> Venus Love Reading",
	}}
	s := mustNewSynthesizer(t, gen)

	require.Equal(t, "Venus Love Reading", s.Synthesize(context.Background(), "What about Venus?"))
}

func TestSynthesize_TrimsQuotes(t *testing.T) {
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{Text: `"Moon Sign Meaning"`}}
	s := mustNewSynthesizer(t, gen)

	require.Equal(t, "Moon Sign Meaning", s.Synthesize(context.Background(), "What is my moon sign?"))
}

func TestSynthesize_RejectsOverlongGeneratedTitle(t *testing.T) {
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{Text: strings.Repeat("x", 101)}}
	s := mustNewSynthesizer(t, gen)

	title := s.Synthesize(context.Background(), "short question")
	require.Equal(t, "short question", title)
}

func TestSynthesize_RejectsEmptyGeneratedTitle(t *testing.T) {
	gen := &fakeResponseGenerator{answer: domain.GeneratedAnswer{Text: "<reasoning>only reasoning</reasoning>"}}
	s := mustNewSynthesizer(t, gen)

	require.Equal(t, "short question", s.Synthesize(context.Background(), "short question"))
}

func TestSynthesize_FallbackOnGenerationError(t *testing.T) {
	gen := &fakeResponseGenerator{err: errors.New("model unavailable")}
	s := mustNewSynthesizer(t, gen)

	require.Equal(t, "short question", s.Synthesize(context.Background(), "short question"))
}

func TestSynthesize_FallbackTruncatesAtFifty(t *testing.T) {
	gen := &fakeResponseGenerator{err: errors.New("model unavailable")}
	s := mustNewSynthesizer(t, gen)

	message := "What does my birth chart say about my future career prospects?"
	title := s.Synthesize(context.Background(), message)
	require.Equal(t, strings.TrimSpace(message[:50])+"...", title)
	require.True(t, strings.HasSuffix(title, "..."))
}

func TestFallbackTitle_ShortMessageUnchanged(t *testing.T) {
	require.Equal(t, "short", fallbackTitle(" short "))
}

func TestFallbackTitle_ExactlyFifty(t *testing.T) {
	message := strings.Repeat("a", 50)
	require.Equal(t, message, fallbackTitle(message))
}

func TestFallbackTitle_FiftyOne(t *testing.T) {
	message := strings.Repeat("a", 51)
	require.Equal(t, strings.Repeat("a", 50)+"...", fallbackTitle(message))
}
